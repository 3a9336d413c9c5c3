package engine

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/inboxforge/warmline/internal/store"
)

// bounceFromKeywords flag a bounce by who sent the notification.
var bounceFromKeywords = []string{"mailer-daemon", "postmaster", "noreply"}

// bounceSubjectPatterns flag a bounce by how the notification is titled.
var bounceSubjectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)delivery\s+status\s+notification`),
	regexp.MustCompile(`(?i)undelivered\s+mail`),
	regexp.MustCompile(`(?i)returned\s+mail`),
	regexp.MustCompile(`(?i)mail\s+delivery\s+(failed|failure)`),
	regexp.MustCompile(`(?i)undeliverable`),
	regexp.MustCompile(`(?i)mailer-daemon`),
	regexp.MustCompile(`(?i)delivery\s+failure`),
	regexp.MustCompile(`(?i)message\s+not\s+delivered`),
}

// addressPattern extracts quoted recipient addresses from bounce bodies.
var addressPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// isBounceNotification reports whether a message looks like a delivery
// failure report, by sender address keywords or subject patterns.
func isBounceNotification(subject, from string) bool {
	fromLower := strings.ToLower(from)
	for _, keyword := range bounceFromKeywords {
		if strings.Contains(fromLower, keyword) {
			return true
		}
	}
	for _, pattern := range bounceSubjectPatterns {
		if pattern.MatchString(subject) {
			return true
		}
	}
	return false
}

// ProcessSenderBounces sweeps one sender inbox for bounce notifications
// and marks the matched originals bounced. Fetching marks every pulled
// message seen, which is also what keeps a processed notification from
// being processed twice; unread flags are deliberately not restored
// here. Returns the number of bounces recorded.
func (e *Engine) ProcessSenderBounces(ctx context.Context, sender *store.Account) (int, error) {
	if sender.AccountType != store.AccountSender {
		log.Printf("[Engine] account %s is not a sender, skipping bounce sweep", sender.Email)
		return 0, nil
	}

	password, err := e.vault.Decrypt(sender.EncryptedPassword)
	if err != nil {
		return 0, err
	}

	inbound, err := e.newMailer(sender, password).FetchUnread(ctx, inboxFetchLimit)
	if err != nil {
		return 0, err
	}
	if len(inbound) == 0 {
		return 0, nil
	}

	bounces := 0
	for _, m := range inbound {
		if !isBounceNotification(m.Subject, m.From) {
			continue
		}
		log.Printf("[Engine] bounce detected for %s: %q from %s", sender.Email, m.Subject, m.From)

		ref, err := e.findBouncedEmail(ctx, sender, m.Body)
		if err != nil {
			log.Printf("[Engine] matching bounce for %s failed: %v", sender.Email, err)
			continue
		}
		if ref == nil {
			log.Printf("[Engine] could not match bounce from %s to a sent email", m.From)
			continue
		}

		now := e.now().UTC()
		if err := e.store.MarkEmailBounced(ctx, ref.ID, now); err != nil {
			log.Printf("[Engine] marking email %s bounced failed: %v", ref.ID, err)
			continue
		}
		if err := e.store.IncrementAccountCounter(ctx, sender.ID, "total_bounced", 1); err != nil {
			log.Printf("[Engine] bumping bounce counter for %s failed: %v", sender.Email, err)
			continue
		}
		if ref.CampaignID != nil {
			if err := e.store.IncrementCampaignCounter(ctx, *ref.CampaignID, "total_emails_bounced", 1); err != nil {
				log.Printf("[Engine] bumping campaign bounce counter failed: %v", err)
			}
		}

		bounces++
		log.Printf("[Engine] marked email %s as bounced (%s -> %s)", ref.ID, sender.Email, ref.ReceiverEmail)
	}

	if bounces > 0 {
		log.Printf("[Engine] processed %d bounces for %s", bounces, sender.Email)
	}
	return bounces, nil
}

// ProcessAllSenderBounces sweeps every sender inbox. Paused senders are
// swept too: their mail keeps bouncing in after the pause.
func (e *Engine) ProcessAllSenderBounces(ctx context.Context) (map[string]int, error) {
	senders, err := e.store.ListAccounts(ctx, store.AccountSender, store.AccountActive)
	if err != nil {
		return nil, err
	}
	paused, err := e.store.ListAccounts(ctx, store.AccountSender, store.AccountPaused)
	if err != nil {
		return nil, err
	}
	senders = append(senders, paused...)
	log.Printf("[Engine] sweeping %d sender accounts for bounces", len(senders))

	results := make(map[string]int, len(senders))
	for _, sender := range senders {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		count, err := e.ProcessSenderBounces(ctx, sender)
		if err != nil {
			log.Printf("[Engine] bounce sweep for %s failed: %v", sender.Email, err)
			continue
		}
		results[sender.Email] = count
	}
	return results, nil
}

// findBouncedEmail matches addresses quoted in a bounce body against
// the sender's most recently sent emails. The sender's own address is
// never a candidate; bounce bodies always quote it.
func (e *Engine) findBouncedEmail(ctx context.Context, sender *store.Account, body string) (*store.SentEmailRef, error) {
	candidates := addressPattern.FindAllString(body, -1)
	if len(candidates) == 0 {
		return nil, nil
	}

	recent, err := e.store.RecentSentBySender(ctx, sender.ID, recentSentWindow)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		if strings.EqualFold(candidate, sender.Email) {
			continue
		}
		for _, ref := range recent {
			if strings.EqualFold(ref.ReceiverEmail, candidate) {
				return ref, nil
			}
		}
	}
	return nil, nil
}
