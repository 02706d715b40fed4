package parser

import (
	"regexp"
	"strings"

	"github.com/mixelka/inboxrelay/pkg/models"
)

// maxCodes caps how many codes a single message may yield
const maxCodes = 3

// CodeDetector detects verification codes in text
type CodeDetector struct {
	patterns []*codePattern
}

type codePattern struct {
	Type  string
	Regex *regexp.Regexp
}

// NewCodeDetector creates a new code detector
func NewCodeDetector() *CodeDetector {
	return &CodeDetector{
		patterns: []*codePattern{
			{
				Type:  "otp",
				Regex: regexp.MustCompile(`(?i)(?:code|otp|pin|passcode)\s*(?:is)?[\s:\-]*(\d{4,8})\b`),
			},
			{
				Type:  "verification",
				Regex: regexp.MustCompile(`(?i)(?:verification|verify|confirm|activation)[\s\w]*?[\s:\-]+(\d{4,8})\b`),
			},
			// digits alone on a line
			{
				Type:  "code",
				Regex: regexp.MustCompile(`(?m)^\s*(\d{4,8})\s*$`),
			},
			{
				Type:  "code",
				Regex: regexp.MustCompile(`(?:code|CODE|Code)[\s:\-]*([A-Z0-9]{4,12})\b`),
			},
		},
	}
}

// DetectCodes finds verification codes in text, in pattern priority order
func (d *CodeDetector) DetectCodes(text string) []models.DetectedCode {
	var codes []models.DetectedCode
	seen := make(map[string]bool)

	for _, pattern := range d.patterns {
		for _, match := range pattern.Regex.FindAllStringSubmatch(text, -1) {
			if len(match) < 2 {
				continue
			}
			code := strings.TrimSpace(match[1])
			if seen[code] || len(code) < 4 {
				continue
			}
			seen[code] = true
			codes = append(codes, models.DetectedCode{
				Type:  pattern.Type,
				Value: code,
			})
			if len(codes) == maxCodes {
				return codes
			}
		}
	}

	return codes
}
