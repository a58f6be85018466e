package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakevault/backend/internal/logger"
	"github.com/stakevault/backend/internal/models"
	"github.com/stakevault/backend/internal/queue"
	"github.com/stakevault/backend/internal/services/accrual"
	"github.com/stakevault/backend/internal/store"
)

// PlanProfit is one active investment's line in a profit summary
type PlanProfit struct {
	Tier        string          `json:"tier"`
	Amount      decimal.Decimal `json:"amount"`
	DailyProfit decimal.Decimal `json:"daily_profit"`
}

// ProfitSummaryPayload is the payload of a profit_summary job
type ProfitSummaryPayload struct {
	UserID        uuid.UUID       `json:"user_id"`
	ChatID        int64           `json:"chat_id"`
	Date          time.Time       `json:"date"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	DailyIncrease decimal.Decimal `json:"daily_increase"`
	Plans         []PlanProfit    `json:"plans"`
}

// TextSender delivers a plain message to a user chat
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// ProfitSummaryJob records the daily profit snapshot of every user with
// active investments and queues a summary for users with a linked chat
type ProfitSummaryJob struct {
	store store.Store
	queue queue.Enqueuer
	log   *logger.Logger
}

// NewProfitSummaryJob creates a new profit summary job
func NewProfitSummaryJob(st store.Store, q queue.Enqueuer, log *logger.Logger) *ProfitSummaryJob {
	return &ProfitSummaryJob{
		store: st,
		queue: q,
		log:   log.Component("profit_summary"),
	}
}

// Run snapshots every user's total profit at asOf. The daily increase is
// measured against the last snapshot before asOf's day; without one it is
// today's daily profit. Returns the number of snapshots written.
func (j *ProfitSummaryJob) Run(ctx context.Context, asOf time.Time) (int, error) {
	active, err := j.store.ListActiveInvestments(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active investments: %w", err)
	}

	byUser := make(map[uuid.UUID][]models.Investment)
	for _, inv := range active {
		byUser[inv.UserID] = append(byUser[inv.UserID], inv)
	}

	userIDs := make([]uuid.UUID, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(a, b int) bool { return userIDs[a].String() < userIDs[b].String() })

	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	written := 0
	for _, userID := range userIDs {
		payload, err := j.snapshot(ctx, userID, byUser[userID], asOf, dayStart)
		if err != nil {
			j.log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to record profit snapshot")
			continue
		}
		written++

		if payload.ChatID == 0 || j.queue == nil {
			continue
		}
		if _, err := j.queue.Enqueue(ctx, queue.JobTypeProfitSummary, payload); err != nil {
			j.log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to enqueue profit summary")
		}
	}

	j.log.Info().Int("users", written).Msg("Profit snapshots recorded")
	return written, nil
}

func (j *ProfitSummaryJob) snapshot(ctx context.Context, userID uuid.UUID, investments []models.Investment, asOf, dayStart time.Time) (*ProfitSummaryPayload, error) {
	payload := &ProfitSummaryPayload{
		UserID:        userID,
		Date:          asOf,
		TotalProfit:   decimal.Zero,
		DailyIncrease: decimal.Zero,
	}

	dailyTotal := decimal.Zero
	for i := range investments {
		pos := accrual.Snapshot(&investments[i], asOf)
		payload.TotalProfit = payload.TotalProfit.Add(pos.CurrentReturn)
		dailyTotal = dailyTotal.Add(pos.DailyProfit)
		payload.Plans = append(payload.Plans, PlanProfit{
			Tier:        investments[i].PlanTier,
			Amount:      investments[i].Amount,
			DailyProfit: pos.DailyProfit,
		})
	}

	previous, err := j.store.LatestProfitSnapshot(ctx, userID, dayStart)
	if err != nil {
		return nil, err
	}
	if previous != nil {
		payload.DailyIncrease = payload.TotalProfit.Sub(previous.TotalProfit)
	} else {
		payload.DailyIncrease = dailyTotal
	}

	err = j.store.CreateProfitSnapshot(ctx, &models.ProfitSnapshot{
		UserID:        userID,
		TotalProfit:   payload.TotalProfit,
		DailyIncrease: payload.DailyIncrease,
		RecordedAt:    asOf,
	})
	if err != nil {
		return nil, err
	}

	user, err := j.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TelegramChatID != nil {
		payload.ChatID = *user.TelegramChatID
	}
	return payload, nil
}

// ProfitSummaryHandler returns the queue handler that sends a summary to
// the user's chat
func ProfitSummaryHandler(sender TextSender) queue.Handler {
	return func(ctx context.Context, job queue.Job) error {
		var payload ProfitSummaryPayload
		if err := job.Decode(&payload); err != nil {
			return fmt.Errorf("failed to decode profit summary: %w", err)
		}
		if payload.ChatID == 0 {
			return nil
		}
		return sender.SendText(ctx, payload.ChatID, FormatProfitSummary(payload))
	}
}

// FormatProfitSummary renders the daily report text
func FormatProfitSummary(p ProfitSummaryPayload) string {
	sign := "+"
	if p.DailyIncrease.IsNegative() {
		sign = "-"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Daily Profit Report (%s)\n\n", p.Date.Format("Jan 2, 2006"))
	fmt.Fprintf(&sb, "Today You Earned: %s$%s\n", sign, p.DailyIncrease.Abs().StringFixed(2))
	fmt.Fprintf(&sb, "Total Profit: $%s\n", p.TotalProfit.StringFixed(2))
	fmt.Fprintf(&sb, "Active Plans: %d\n", len(p.Plans))
	for i, plan := range p.Plans {
		fmt.Fprintf(&sb, "\n%d. %s ($%s): +$%s", i+1, plan.Tier, plan.Amount.StringFixed(2), plan.DailyProfit.StringFixed(2))
	}
	return sb.String()
}
