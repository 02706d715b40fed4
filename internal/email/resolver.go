package email

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// knownIMAPServers answers popular domains without network probing
var knownIMAPServers = map[string]string{
	"gmail.com":      "imap.gmail.com:993",
	"googlemail.com": "imap.gmail.com:993",
	"outlook.com":    "outlook.office365.com:993",
	"hotmail.com":    "outlook.office365.com:993",
	"live.com":       "outlook.office365.com:993",
	"msn.com":        "outlook.office365.com:993",
	"yahoo.com":      "imap.mail.yahoo.com:993",
	"yahoo.co.uk":    "imap.mail.yahoo.com:993",
	"yandex.ru":      "imap.yandex.ru:993",
	"yandex.com":     "imap.yandex.com:993",
	"mail.ru":        "imap.mail.ru:993",
	"bk.ru":          "imap.mail.ru:993",
	"list.ru":        "imap.mail.ru:993",
	"inbox.ru":       "imap.mail.ru:993",
	"icloud.com":     "imap.mail.me.com:993",
	"me.com":         "imap.mail.me.com:993",
	"mac.com":        "imap.mail.me.com:993",
	"aol.com":        "imap.aol.com:993",
	"zoho.com":       "imap.zoho.com:993",
	"protonmail.com": "127.0.0.1:1143", // ProtonMail Bridge
	"proton.me":      "127.0.0.1:1143",
	"fastmail.com":   "imap.fastmail.com:993",
	"gmx.com":        "imap.gmx.com:993",
	"gmx.de":         "imap.gmx.net:993",
	"web.de":         "imap.web.de:993",
	"t-online.de":    "secureimap.t-online.de:993",
	"rambler.ru":     "imap.rambler.ru:993",
}

const (
	imapsPort    = "993"
	probeTimeout = 3 * time.Second
)

// ResolveIMAPServer determines the IMAP server for an email address.
// Known providers answer from the table; other domains are probed over the
// network, bounded by ctx.
func ResolveIMAPServer(ctx context.Context, email string) (string, error) {
	domain := GetDomainFromEmail(email)
	if domain == "" {
		return "", fmt.Errorf("invalid email format")
	}

	if server, ok := knownIMAPServers[domain]; ok {
		return server, nil
	}

	for _, host := range []string{"imap." + domain, "mail." + domain, domain} {
		if reachable(ctx, host) {
			return net.JoinHostPort(host, imapsPort), nil
		}
	}

	if server, err := resolveViaMX(ctx, domain); err == nil {
		return server, nil
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("resolve IMAP server for %s: %w", domain, err)
	}

	// nothing answered, imap.<domain> is the most common layout
	return net.JoinHostPort("imap."+domain, imapsPort), nil
}

// reachable reports whether host accepts TCP connections on the IMAPS port
func reachable(ctx context.Context, host string) bool {
	if ctx.Err() != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, imapsPort))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// resolveViaMX derives the IMAP server from the primary MX record,
// e.g. mx.example.com -> imap.example.com
func resolveViaMX(ctx context.Context, domain string) (string, error) {
	mxRecords, err := net.DefaultResolver.LookupMX(ctx, domain)
	if err != nil || len(mxRecords) == 0 {
		return "", fmt.Errorf("no MX records found")
	}

	mxHost := strings.TrimSuffix(mxRecords[0].Host, ".")
	parts := strings.SplitN(mxHost, ".", 2)
	if len(parts) == 2 {
		for _, host := range []string{"imap." + parts[1], "mail." + parts[1]} {
			if reachable(ctx, host) {
				return net.JoinHostPort(host, imapsPort), nil
			}
		}
	}

	return "", fmt.Errorf("could not determine IMAP server")
}

// GetDomainFromEmail extracts domain from email address
func GetDomainFromEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	return strings.ToLower(parts[1])
}
