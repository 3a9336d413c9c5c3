package engine

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/inboxforge/warmline/internal/mailer"
	"github.com/inboxforge/warmline/internal/store"
)

// ProcessReceiver reads one receiver inbox and replies to a stochastic
// subset of the warmup mail found there. Messages that are skipped or
// fail to get a reply have their unread flag restored, since fetching
// marked them seen. Returns the number of replies sent.
func (e *Engine) ProcessReceiver(ctx context.Context, receiver *store.Account) (int, error) {
	if receiver.AccountType != store.AccountReceiver {
		log.Printf("[Engine] account %s is not a receiver, skipping", receiver.Email)
		return 0, nil
	}
	if receiver.Status != store.AccountActive {
		log.Printf("[Engine] account %s is not active, skipping", receiver.Email)
		return 0, nil
	}

	password, err := e.vault.Decrypt(receiver.EncryptedPassword)
	if err != nil {
		return 0, err
	}
	mail := e.newMailer(receiver, password)

	inbound, err := mail.FetchUnread(ctx, inboxFetchLimit)
	if err != nil {
		return 0, err
	}
	if len(inbound) == 0 {
		log.Printf("[Engine] no unread mail for %s", receiver.Email)
		return 0, nil
	}

	replies := 0
	var restore []uint32
	for _, m := range inbound {
		sender, err := e.store.GetAccountByEmail(ctx, m.From)
		if err != nil {
			log.Printf("[Engine] sender lookup for %s failed: %v", m.From, err)
			restore = append(restore, m.UID)
			continue
		}
		if sender == nil || sender.AccountType != store.AccountSender {
			restore = append(restore, m.UID)
			continue
		}

		if e.randFloat() >= e.response.ReplyProbability {
			restore = append(restore, m.UID)
			continue
		}

		// The nominal human delay is logged, not slept: replies go out
		// in the same sweep, the cadence comes from the sweep schedule.
		log.Printf("[Engine] simulating a %.1fh human delay before replying to %s",
			e.replyDelay().Hours(), m.From)

		ok, err := e.sendReply(ctx, receiver, sender, mail, m)
		if err != nil {
			log.Printf("[Engine] reply to %s failed: %v", m.From, err)
			restore = append(restore, m.UID)
			continue
		}
		if !ok {
			restore = append(restore, m.UID)
			continue
		}
		replies++
	}

	if err := mail.RestoreUnseen(ctx, restore); err != nil {
		log.Printf("[Engine] restoring unread flags for %s failed: %v", receiver.Email, err)
	}

	if err := e.store.IncrementAccountCounter(ctx, receiver.ID, "total_received", len(inbound)); err != nil {
		return replies, err
	}
	if replies > 0 {
		if err := e.store.IncrementAccountCounter(ctx, receiver.ID, "total_replied", replies); err != nil {
			return replies, err
		}
	}

	log.Printf("[Engine] replied to %d/%d messages for %s", replies, len(inbound), receiver.Email)
	return replies, nil
}

// ProcessAllReceivers runs the conversation sweep over every active
// receiver account.
func (e *Engine) ProcessAllReceivers(ctx context.Context) (map[string]int, error) {
	receivers, err := e.store.ListAccounts(ctx, store.AccountReceiver, store.AccountActive)
	if err != nil {
		return nil, err
	}
	log.Printf("[Engine] processing %d receiver accounts", len(receivers))

	results := make(map[string]int, len(receivers))
	for _, receiver := range receivers {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		count, err := e.ProcessReceiver(ctx, receiver)
		if err != nil {
			log.Printf("[Engine] receiver %s failed: %v", receiver.Email, err)
			continue
		}
		results[receiver.Email] = count
	}
	return results, nil
}

// sendReply answers one warmup message: generate a reply in the
// campaign's language, persist it threaded onto the original, send it
// over the receiver's own SMTP and flip the original email to replied.
func (e *Engine) sendReply(ctx context.Context, receiver, sender *store.Account, mail AccountMailer, m *mailer.Inbound) (bool, error) {
	language := store.LanguageEnglish
	campaign, err := e.store.FindActiveCampaignForPair(ctx, sender.ID, receiver.ID)
	if err != nil {
		return false, err
	}
	if campaign != nil {
		language = campaign.Language
	}

	content := e.gen.GenerateReply(ctx, m.Subject, m.Body, e.signatureFor(receiver), language)

	subject := content.Subject
	if strings.HasPrefix(m.Subject, "Re:") {
		subject = m.Subject
	}

	var inReplyTo *string
	if m.MessageID != "" {
		inReplyTo = &m.MessageID
	}

	messageID := mailer.NewMessageID(receiver.Domain)
	record := &store.Email{
		MessageID:   &messageID,
		SenderID:    receiver.ID,
		ReceiverID:  sender.ID,
		Subject:     subject,
		Body:        content.Body,
		InReplyTo:   inReplyTo,
		ThreadID:    inReplyTo,
		IsWarmup:    true,
		AIGenerated: true,
		AIPrompt:    content.Prompt,
		AIModel:     content.Model,
	}
	if err := e.store.CreateEmail(ctx, record); err != nil {
		return false, err
	}

	msg := &mailer.Message{
		To:          sender.Email,
		Subject:     subject,
		Body:        content.Body,
		MessageID:   messageID,
		InReplyTo:   m.MessageID,
		References:  m.MessageID,
		TrackingURL: e.tokens.TrackingURL(record.ID),
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if _, err := mail.Send(sendCtx, msg); err != nil {
		log.Printf("[Engine] reply from %s to %s failed: %v", receiver.Email, sender.Email, err)
		if err := e.store.MarkEmailBounced(ctx, record.ID, e.now().UTC()); err != nil {
			return false, err
		}
		return false, nil
	}

	now := e.now().UTC()
	if err := e.store.MarkEmailSent(ctx, record.ID, now); err != nil {
		return false, err
	}

	if m.MessageID != "" {
		original, err := e.store.GetEmailByMessageID(ctx, m.MessageID)
		if err != nil {
			return false, err
		}
		if original == nil {
			log.Printf("[Engine] original message %s not found in the email log", m.MessageID)
		} else {
			if _, err := e.store.MarkEmailReplied(ctx, m.MessageID, now); err != nil {
				return false, err
			}
			if original.CampaignID != nil {
				if err := e.store.IncrementCampaignCounter(ctx, *original.CampaignID, "total_emails_replied", 1); err != nil {
					return false, err
				}
			}
		}
	}

	log.Printf("[Engine] sent reply from %s to %s", receiver.Email, sender.Email)
	return true, nil
}

// replyDelay draws the nominal human response delay from the
// configured window.
func (e *Engine) replyDelay() time.Duration {
	min := e.response.DelayMinHours
	max := e.response.DelayMaxHours
	if max <= min {
		return time.Duration(min * float64(time.Hour))
	}
	return time.Duration((min + e.randFloat()*(max-min)) * float64(time.Hour))
}
