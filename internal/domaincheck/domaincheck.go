// Package domaincheck looks up domain age over WHOIS and turns it into
// warmup recommendations: how many weeks to ramp and how much mail a
// fresh sender should start with per day.
package domaincheck

import (
	"context"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
)

// Profile holds what we learned about a sender domain
type Profile struct {
	Domain       string     `json:"domain"`
	CreationDate *time.Time `json:"creation_date"`
	AgeDays      *int       `json:"age_days"`
	Registrar    string     `json:"registrar"`
	Status       []string   `json:"status"`
}

// IsNewDomain reports whether the domain is younger than 30 days.
// Unknown age counts as not new.
func (p *Profile) IsNewDomain() bool {
	return p.AgeDays != nil && *p.AgeDays < 30
}

// WarmupWeeksRecommended maps domain age to a ramp duration
func (p *Profile) WarmupWeeksRecommended() int {
	if p.AgeDays == nil {
		return 6
	}
	switch age := *p.AgeDays; {
	case age < 30:
		return 8
	case age < 90:
		return 6
	case age < 180:
		return 4
	default:
		return 2
	}
}

// InitialDailyLimit maps domain age to a starting per-day send cap
func (p *Profile) InitialDailyLimit() int {
	if p.AgeDays == nil {
		return 5
	}
	switch age := *p.AgeDays; {
	case age < 30:
		return 3
	case age < 90:
		return 5
	case age < 180:
		return 10
	default:
		return 20
	}
}

// lookupFunc performs the raw WHOIS query, swappable in tests
type lookupFunc func(domain string) (string, error)

// Checker queries WHOIS and profiles domains
type Checker struct {
	lookup lookupFunc
	now    func() time.Time
}

// NewChecker creates a checker with the given WHOIS query timeout
func NewChecker(timeout time.Duration) *Checker {
	client := whois.NewClient().SetTimeout(timeout)
	return &Checker{
		lookup: func(domain string) (string, error) {
			return client.Whois(domain)
		},
		now: time.Now,
	}
}

// ExtractDomain pulls the lowercased domain out of an email address,
// accepting the "Name <addr@host>" form. Inputs without an @ are
// returned lowercased as-is.
func ExtractDomain(email string) string {
	addr := email
	if parsed, err := mail.ParseAddress(email); err == nil {
		addr = parsed.Address
	}
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return strings.ToLower(addr[i+1:])
	}
	return strings.ToLower(email)
}

// CheckDomain profiles the domain of an email address or a bare
// domain. WHOIS failures degrade to a profile with unknown age, never
// an error, so account creation keeps working when WHOIS is down.
func (c *Checker) CheckDomain(ctx context.Context, emailOrDomain string) *Profile {
	domain := strings.ToLower(emailOrDomain)
	if strings.Contains(emailOrDomain, "@") {
		domain = ExtractDomain(emailOrDomain)
	}

	profile := &Profile{Domain: domain}

	if err := ctx.Err(); err != nil {
		log.Printf("[DomainCheck] skipping WHOIS for %s: %v", domain, err)
		return profile
	}

	raw, err := c.lookup(domain)
	if err != nil {
		log.Printf("[DomainCheck] WHOIS query failed for %s: %v", domain, err)
		return profile
	}

	parsed, err := whoisparser.Parse(raw)
	if err != nil {
		log.Printf("[DomainCheck] WHOIS parse failed for %s: %v", domain, err)
		return profile
	}

	if parsed.Domain != nil {
		profile.Status = parsed.Domain.Status
		if parsed.Domain.CreatedDateInTime != nil {
			created := parsed.Domain.CreatedDateInTime.UTC()
			profile.CreationDate = &created
			age := int(c.now().UTC().Sub(created).Hours() / 24)
			profile.AgeDays = &age
		}
	}
	if parsed.Registrar != nil {
		profile.Registrar = parsed.Registrar.Name
	}

	log.Printf("[DomainCheck] %s: age=%v days, recommended warmup %d weeks",
		domain, formatAge(profile.AgeDays), profile.WarmupWeeksRecommended())
	return profile
}

func formatAge(age *int) interface{} {
	if age == nil {
		return "unknown"
	}
	return *age
}
