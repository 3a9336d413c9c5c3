package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/inboxforge/warmline/internal/aigen"
	"github.com/inboxforge/warmline/internal/domaincheck"
	"github.com/inboxforge/warmline/internal/errdefs"
	"github.com/inboxforge/warmline/internal/mailer"
	"github.com/inboxforge/warmline/internal/store"
)

// Business hours for outbound warmup mail, UTC.
const (
	businessStartHour = 9
	businessEndHour   = 18
)

// minSendLead is the shortest gap between a scheduling decision and the
// send it arms.
const minSendLead = 30 * time.Minute

// StartCampaign validates the account sets, derives the ramp duration
// from the senders' domain ages and activates the campaign with its
// first send armed inside business hours.
func (e *Engine) StartCampaign(ctx context.Context, name string, senderIDs, receiverIDs []uuid.UUID, durationWeeks int, language string) (*store.Campaign, error) {
	if len(senderIDs) == 0 || len(receiverIDs) == 0 {
		return nil, fmt.Errorf("%w: campaign needs at least one sender and one receiver", errdefs.ErrInvalidInput)
	}

	senders, err := e.store.GetAccountsByIDs(ctx, senderIDs)
	if err != nil {
		return nil, err
	}
	if len(senders) != len(senderIDs) {
		return nil, fmt.Errorf("%w: some sender accounts not found", errdefs.ErrInvalidInput)
	}
	receivers, err := e.store.GetAccountsByIDs(ctx, receiverIDs)
	if err != nil {
		return nil, err
	}
	if len(receivers) != len(receiverIDs) {
		return nil, fmt.Errorf("%w: some receiver accounts not found", errdefs.ErrInvalidInput)
	}

	duration := durationWeeks
	if duration <= 0 {
		duration, err = e.rampDuration(ctx, senders)
		if err != nil {
			return nil, err
		}
	}

	campaign := &store.Campaign{
		Name:          name,
		SenderIDs:     senderIDs,
		ReceiverIDs:   receiverIDs,
		Language:      language,
		DurationWeeks: duration,
	}
	if err := e.store.CreateCampaign(ctx, campaign); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	next := e.chooseSendTime(now, false)
	if err := e.store.StartCampaignRun(ctx, campaign.ID, duration, now, next); err != nil {
		return nil, err
	}

	for _, sender := range senders {
		if sender.WarmupStartedAt == nil {
			if err := e.store.MarkWarmupStarted(ctx, sender.ID, now); err != nil {
				return nil, err
			}
		}
	}

	campaign.Status = store.CampaignActive
	campaign.StartTime = now
	campaign.CurrentWeek = 1
	campaign.NextSendTime = &next

	log.Printf("[Engine] started campaign %q with %d senders and %d receivers for %d weeks",
		name, len(senders), len(receivers), duration)
	log.Printf("[Engine] campaign %s: first send scheduled for %s", campaign.ID, next.Format(time.RFC3339))
	return campaign, nil
}

// rampDuration picks the campaign length: the configured default or the
// longest warmup any sender's domain age calls for, whichever is
// larger. Senders with no stored domain age are profiled first.
func (e *Engine) rampDuration(ctx context.Context, senders []*store.Account) (int, error) {
	duration := e.warmup.DurationWeeks
	for _, sender := range senders {
		profile, err := e.domainProfile(ctx, sender)
		if err != nil {
			return 0, err
		}
		if weeks := profile.WarmupWeeksRecommended(); weeks > duration {
			duration = weeks
		}
	}
	return duration, nil
}

// domainProfile returns the sender's domain age profile, running and
// persisting a WHOIS check when none is stored yet.
func (e *Engine) domainProfile(ctx context.Context, sender *store.Account) (*domaincheck.Profile, error) {
	if sender.DomainAgeDays != nil {
		return &domaincheck.Profile{Domain: sender.Domain, AgeDays: sender.DomainAgeDays}, nil
	}

	profile := e.domains.CheckDomain(ctx, sender.Email)
	checkedAt := e.now().UTC()
	if err := e.store.UpdateDomainInfo(ctx, sender.ID, profile.Domain, profile.AgeDays, checkedAt); err != nil {
		return nil, err
	}
	sender.Domain = profile.Domain
	sender.DomainAgeDays = profile.AgeDays
	sender.DomainCheckedAt = &checkedAt
	return profile, nil
}

// ProcessCampaign runs one scheduler step: advance the ramp week,
// compute today's target and send a batch when one is due. force
// bypasses the next_send_time gate for manual "send now" requests.
// Transport failures are recorded per slot and never abort the batch;
// database errors do, leaving next_send_time unchanged so the trigger
// retries.
func (e *Engine) ProcessCampaign(ctx context.Context, campaign *store.Campaign, force bool) (int, error) {
	if campaign.Status != store.CampaignActive {
		log.Printf("[Engine] campaign %s is not active, skipping", campaign.ID)
		return 0, nil
	}

	now := e.now().UTC()
	if force {
		log.Printf("[Engine] campaign %s: manual send, bypassing schedule", campaign.ID)
	} else if campaign.NextSendTime != nil && campaign.NextSendTime.After(now) {
		log.Printf("[Engine] campaign %s: not due until %s", campaign.ID, campaign.NextSendTime.Format(time.RFC3339))
		return 0, nil
	}

	weeksElapsed := int(now.Sub(campaign.StartTime)/(7*24*time.Hour)) + 1
	campaign.CurrentWeek = weeksElapsed
	if campaign.CurrentWeek > campaign.DurationWeeks {
		campaign.CurrentWeek = campaign.DurationWeeks
	}
	if weeksElapsed > campaign.DurationWeeks {
		if err := e.store.CompleteCampaign(ctx, campaign.ID, now); err != nil {
			return 0, err
		}
		campaign.Status = store.CampaignCompleted
		campaign.EndTime = &now
		log.Printf("[Engine] campaign %s completed after %d weeks", campaign.ID, campaign.DurationWeeks)
		return 0, nil
	}

	senders, err := e.store.GetAccountsByIDs(ctx, campaign.SenderIDs)
	if err != nil {
		return 0, err
	}

	target := e.dailyTarget(campaign, senders)
	campaign.TargetEmailsToday = target
	if err := e.store.SetDailyPlan(ctx, campaign.ID, campaign.CurrentWeek, target); err != nil {
		return 0, err
	}

	if campaign.EmailsSentToday >= target {
		next := e.chooseSendTime(now, true)
		if err := e.store.SetNextSendTime(ctx, campaign.ID, &next); err != nil {
			return 0, err
		}
		campaign.NextSendTime = &next
		log.Printf("[Engine] campaign %s: already sent %d/%d today, next send %s",
			campaign.ID, campaign.EmailsSentToday, target, next.Format(time.RFC3339))
		return 0, nil
	}

	batch := target - campaign.EmailsSentToday
	if batch > e.warmup.MaxBatchSize {
		batch = e.warmup.MaxBatchSize
	}

	receivers, err := e.store.GetAccountsByIDs(ctx, campaign.ReceiverIDs)
	if err != nil {
		return 0, err
	}

	sent, err := e.sendBatch(ctx, campaign, senders, receivers, batch)
	if err != nil {
		return sent, err
	}

	next := e.chooseSendTime(e.now().UTC(), campaign.EmailsSentToday >= target)
	if err := e.store.SetNextSendTime(ctx, campaign.ID, &next); err != nil {
		return sent, err
	}
	campaign.NextSendTime = &next

	log.Printf("[Engine] campaign %s: sent %d emails (%d/%d today), next send %s",
		campaign.ID, sent, campaign.EmailsSentToday, target, next.Format(time.RFC3339))
	return sent, nil
}

// ResetDailyCounters zeroes every active campaign's daily send counter.
// Runs from the midnight cron.
func (e *Engine) ResetDailyCounters(ctx context.Context) error {
	n, err := e.store.ResetDailyCounters(ctx)
	if err != nil {
		return err
	}
	log.Printf("[Engine] reset daily counters on %d campaigns", n)
	return nil
}

// weekBase is the per-sender daily volume ramp.
func weekBase(week int) int {
	switch {
	case week <= 1:
		return 5
	case week == 2:
		return 10
	case week == 3:
		return 15
	case week == 4:
		return 25
	case week == 5:
		return 35
	default:
		return 50
	}
}

// dailyTarget computes how many emails the campaign should send today:
// the week's per-sender base, clamped in week one by the youngest
// sender domain, scaled by the sender count and capped by the global
// per-day maximum.
func (e *Engine) dailyTarget(campaign *store.Campaign, senders []*store.Account) int {
	base := weekBase(campaign.CurrentWeek)

	if campaign.CurrentWeek == 1 {
		if youngest := youngestDomainAge(senders); youngest != nil {
			limit := base
			switch age := *youngest; {
			case age < 30:
				limit = 3
			case age < 90:
				limit = 5
			case age < 180:
				limit = 10
			}
			if limit < base {
				base = limit
				log.Printf("[Engine] campaign %s: youngest sender domain is %d days old, limiting week 1 to %d emails/sender",
					campaign.ID, *youngest, base)
			}
		}
	}

	target := base * len(campaign.SenderIDs)
	if maxToday := e.warmup.MaxEmailsPerDay * len(campaign.SenderIDs); target > maxToday {
		target = maxToday
	}
	return target
}

// youngestDomainAge returns the smallest known domain age among the
// senders, or nil when no sender has been profiled.
func youngestDomainAge(senders []*store.Account) *int {
	var youngest *int
	for _, sender := range senders {
		if sender.DomainAgeDays == nil {
			continue
		}
		if youngest == nil || *sender.DomainAgeDays < *youngest {
			youngest = sender.DomainAgeDays
		}
	}
	return youngest
}

// sendBatch distributes count slots across the campaign's senders,
// skipping senders over the bounce-rate limit, then delivers one
// generated email per slot with a randomized pause between slots.
func (e *Engine) sendBatch(ctx context.Context, campaign *store.Campaign, senders, receivers []*store.Account, count int) (int, error) {
	if len(senders) == 0 || len(receivers) == 0 {
		log.Printf("[Engine] campaign %s: no sender or receiver accounts found", campaign.ID)
		return 0, nil
	}

	perSender := count / len(senders)
	remainder := count % len(senders)

	var slots []*store.Account
	for i, sender := range senders {
		allocation := perSender
		if i < remainder {
			allocation++
		}

		if rate := sender.BounceRate(); rate > e.warmup.MaxBounceRate {
			log.Printf("[Engine] sender %s bounce rate %.1f%% exceeds limit, skipping", sender.Email, rate*100)
			if e.warmup.AutoPauseOnHighBounce {
				if err := e.store.UpdateAccountStatus(ctx, sender.ID, store.AccountPaused); err != nil {
					return 0, err
				}
				sender.Status = store.AccountPaused
				log.Printf("[Engine] sender %s auto-paused", sender.Email)
			}
			continue
		}

		for j := 0; j < allocation; j++ {
			slots = append(slots, sender)
		}
	}

	// No sender sends twice back-to-back more often than chance allows.
	e.shuffleSlots(slots)

	sent := 0
	for i, sender := range slots {
		if i > 0 {
			if err := e.sleep(ctx, e.slotDelay()); err != nil {
				return sent, err
			}
			// A pause or delete during the inter-slot window stops the
			// batch; the in-flight slot has already completed.
			current, err := e.store.GetCampaign(ctx, campaign.ID)
			if err != nil {
				return sent, err
			}
			if current == nil || current.Status != store.CampaignActive {
				log.Printf("[Engine] campaign %s no longer active, stopping batch", campaign.ID)
				return sent, nil
			}
		}

		ok, err := e.sendSlot(ctx, campaign, sender, receivers)
		if err != nil {
			return sent, err
		}
		if ok {
			sent++
			campaign.EmailsSentToday++
		}
	}
	return sent, nil
}

// sendSlot generates, persists and delivers one warmup email from the
// sender to a randomly picked receiver. A transport failure marks the
// row bounced and returns ok=false without error.
func (e *Engine) sendSlot(ctx context.Context, campaign *store.Campaign, sender *store.Account, receivers []*store.Account) (bool, error) {
	receiver := receivers[e.randIntn(len(receivers))]

	password, err := e.vault.Decrypt(sender.EncryptedPassword)
	if err != nil {
		return false, fmt.Errorf("decrypt credentials for %s: %w", sender.Email, err)
	}

	content := e.gen.Generate(ctx, aigen.Request{
		SenderName: e.signatureFor(sender),
		Language:   campaign.Language,
	})

	messageID := mailer.NewMessageID(sender.Domain)
	record := &store.Email{
		MessageID:   &messageID,
		CampaignID:  &campaign.ID,
		SenderID:    sender.ID,
		ReceiverID:  receiver.ID,
		Subject:     content.Subject,
		Body:        content.Body,
		IsWarmup:    true,
		AIGenerated: true,
		AIPrompt:    content.Prompt,
		AIModel:     content.Model,
	}
	if err := e.store.CreateEmail(ctx, record); err != nil {
		return false, err
	}

	msg := &mailer.Message{
		To:          receiver.Email,
		Subject:     content.Subject,
		Body:        content.Body,
		MessageID:   messageID,
		TrackingURL: e.tokens.TrackingURL(record.ID),
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if _, err := e.newMailer(sender, password).Send(sendCtx, msg); err != nil {
		log.Printf("[Engine] send from %s to %s failed: %v", sender.Email, receiver.Email, err)
		now := e.now().UTC()
		if err := e.store.MarkEmailBounced(ctx, record.ID, now); err != nil {
			return false, err
		}
		if err := e.store.IncrementAccountCounter(ctx, sender.ID, "total_bounced", 1); err != nil {
			return false, err
		}
		if err := e.store.IncrementCampaignCounter(ctx, campaign.ID, "total_emails_bounced", 1); err != nil {
			return false, err
		}
		return false, nil
	}

	now := e.now().UTC()
	if err := e.store.MarkEmailSent(ctx, record.ID, now); err != nil {
		return false, err
	}
	if err := e.store.IncrementAccountCounter(ctx, sender.ID, "total_sent", 1); err != nil {
		return false, err
	}
	if err := e.store.RecordCampaignSend(ctx, campaign.ID, now); err != nil {
		return false, err
	}
	return true, nil
}

// slotDelay draws the randomized pause between batch slots.
func (e *Engine) slotDelay() time.Duration {
	min := time.Duration(e.warmup.SlotDelayMinSeconds) * time.Second
	max := time.Duration(e.warmup.SlotDelayMaxSeconds) * time.Second
	if max <= min {
		return min
	}
	return min + time.Duration(e.randInt63n(int64(max-min)))
}

// chooseSendTime picks the next randomized send instant inside UTC
// business hours. With today's target met the pick always lands
// tomorrow; otherwise it lands later today when at least half an hour
// of the business window remains, else tomorrow.
func (e *Engine) chooseSendTime(now time.Time, targetMet bool) time.Time {
	now = now.UTC()
	if !targetMet {
		latestToday := time.Date(now.Year(), now.Month(), now.Day(), businessEndHour, 0, 0, 0, time.UTC)
		earliest := now.Add(minSendLead)
		if earliest.Before(latestToday) {
			window := latestToday.Sub(earliest)
			return earliest.Add(time.Duration(e.randInt63n(int64(window) + 1)))
		}
	}

	tomorrow := now.AddDate(0, 0, 1)
	hour := businessStartHour + e.randIntn(businessEndHour-businessStartHour)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), hour,
		e.randIntn(60), e.randIntn(60), 0, time.UTC)
}
