package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yogalab/classhub/internal/config"
	"github.com/yogalab/classhub/internal/domain/class"
	"github.com/yogalab/classhub/internal/domain/job"
	"github.com/yogalab/classhub/internal/domain/payment"
	"github.com/yogalab/classhub/internal/http/middlewares"
	"github.com/yogalab/classhub/internal/jobs"
	"github.com/yogalab/classhub/internal/observability"
	"github.com/yogalab/classhub/internal/payments"
)

type PaymentsLedger interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, rec payment.Record) error
	UpdateCountsTx(ctx context.Context, tx pgx.Tx, recordID string, itemsRemoved, classesCredited int) error
	GetBySettlementID(ctx context.Context, settlementID string) (payment.Record, error)
	ListByPayer(ctx context.Context, payerEmail string) ([]payment.Record, error)
}

type CartConsumer interface {
	DeleteManyTx(ctx context.Context, tx pgx.Tx, ownerEmail string, ids []string) (int, error)
}

type EnrollmentCreditor interface {
	IncrementEnrollmentTx(ctx context.Context, tx pgx.Tx, id string) (bool, error)
	GetByIDs(ctx context.Context, ids []string) ([]class.Class, error)
}

type JobsCreator interface {
	CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error)
}

type PaymentsHandler struct {
	ledger    PaymentsLedger
	cart      CartConsumer
	classes   EnrollmentCreditor
	jobsRepo  JobsCreator
	processor payments.Processor
	prom      *observability.Prom
	log       *slog.Logger
	currency  string
}

func NewPaymentsHandler(
	ledger PaymentsLedger,
	cartRepo CartConsumer,
	classes EnrollmentCreditor,
	jobsRepo JobsCreator,
	processor payments.Processor,
	prom *observability.Prom,
	log *slog.Logger,
	currency string,
) *PaymentsHandler {
	return &PaymentsHandler{
		ledger:    ledger,
		cart:      cartRepo,
		classes:   classes,
		jobsRepo:  jobsRepo,
		processor: processor,
		prom:      prom,
		log:       log,
		currency:  currency,
	}
}

type IntentRequest struct {
	AmountMinor int64 `json:"amountMinor" binding:"required,min=1,max=100000000"`
}

// CreateIntent asks the external processor for a charge handle. The charge
// itself completes client-side; settlement happens separately against the
// settlement id the client mints.
func (h *PaymentsHandler) CreateIntent(ctx *gin.Context) {
	var req IntentRequest

	if !BindJSON(ctx, &req) {
		return
	}

	email, ok := middlewares.EmailFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	if h.processor == nil {
		RespondUnavailable(ctx, "payment_unavailable", "Payment processor is not configured")
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	intent, err := h.processor.CreateIntent(cctx, payments.CreateIntentInput{
		PayerEmail:  email,
		AmountMinor: req.AmountMinor,
		Currency:    h.currency,
	})

	if err != nil {
		h.log.Error("payment intent failed", "err", err)
		RespondUnavailable(ctx, "payment_unavailable", "Payment processor rejected the request")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"settlementId": uuid.NewString(),
		"intent":       intent,
	})
}

// Settle applies a completed payment in one transaction: ledger row first,
// then cart cleanup and enrollment credits, then the confirmation job. The
// unique settlement id makes retries replay instead of double-applying.
func (h *PaymentsHandler) Settle(ctx *gin.Context) {
	var req payment.SettleRequest

	if !BindJSON(ctx, &req) {
		return
	}

	email, ok := middlewares.EmailFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	req.PayerEmail = email

	if req.SettlementID == "" {
		req.SettlementID = uuid.NewString()
	}

	classIDs := dedupe(req.ClassIDs)
	cartItemIDs := dedupe(req.CartItemIDs)

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	tx, err := h.ledger.BeginTx(cctx)

	if err != nil {
		h.countSettlement("error")
		RespondInternal(ctx, "Could not settle payment")
		return
	}

	defer func() { _ = tx.Rollback(cctx) }()

	rec := payment.Record{
		ID:           uuid.NewString(),
		SettlementID: req.SettlementID,
		PayerEmail:   email,
		AmountMinor:  req.AmountMinor,
		ClassIDs:     classIDs,
		CartItemIDs:  cartItemIDs,
		CreatedAt:    time.Now().UTC(),
	}

	err = h.ledger.CreateTx(cctx, tx, rec)

	if err != nil {
		if errors.Is(err, payment.ErrDuplicateSettlement) {
			h.replay(ctx, cctx, req)
			return
		}

		h.countSettlement("error")
		RespondInternal(ctx, "Could not settle payment")
		return
	}

	itemsRemoved, err := h.cart.DeleteManyTx(cctx, tx, email, cartItemIDs)

	if err != nil {
		h.countSettlement("error")
		RespondInternal(ctx, "Could not settle payment")
		return
	}

	classesCredited := 0

	for _, id := range classIDs {
		credited, cerr := h.classes.IncrementEnrollmentTx(cctx, tx, id)

		if cerr != nil {
			h.countSettlement("error")
			RespondInternal(ctx, "Could not settle payment")
			return
		}

		if !credited {
			// a deleted listing does not sink the rest of the settlement
			h.log.Warn("enrollment credit skipped", "settlement_id", req.SettlementID, "class_id", id)
			continue
		}

		classesCredited++
	}

	if err := h.ledger.UpdateCountsTx(cctx, tx, rec.ID, itemsRemoved, classesCredited); err != nil {
		h.countSettlement("error")
		RespondInternal(ctx, "Could not settle payment")
		return
	}

	payerName, _ := middlewares.NameFromContext(ctx)

	payload := jobs.SettlementConfirmationPayload{
		SettlementID:    req.SettlementID,
		PaymentRecordID: rec.ID,
		PayerEmail:      email,
		PayerName:       payerName,
		AmountMinor:     req.AmountMinor,
		ClassesCredited: classesCredited,
		RequestedAt:     time.Now().UTC(),
		RequestID:       requestIDFrom(ctx),
	}

	raw, err := payload.JSON()

	if err != nil {
		h.countSettlement("error")
		RespondInternal(ctx, "Could not settle payment")
		return
	}

	key := "settlement:confirm:" + req.SettlementID

	j, err := h.jobsRepo.CreateTx(cctx, tx, job.CreateRequest{
		Type:           jobs.TypeSettlementConfirmation,
		Payload:        raw,
		MaxAttempts:    10,
		IdempotencyKey: &key,
		UserID:         &email,
	})

	if err != nil {
		h.countSettlement("error")
		RespondInternal(ctx, "Could not settle payment")
		return
	}

	if err := tx.Commit(cctx); err != nil {
		h.countSettlement("error")
		RespondInternal(ctx, "Could not settle payment")
		return
	}

	ctx.Set(middlewares.CtxJobID, j.ID)

	h.countSettlement("applied")

	if h.prom != nil {
		h.prom.ClassesCredited.Add(float64(classesCredited))
		h.prom.CartItemsConsumed.Add(float64(itemsRemoved))
	}

	h.log.Info("settlement applied",
		"settlement_id", req.SettlementID,
		"payment_record_id", rec.ID,
		"items_removed", itemsRemoved,
		"classes_credited", classesCredited,
	)

	ctx.JSON(http.StatusCreated, payment.SettlementResult{
		PaymentRecordID: rec.ID,
		ItemsRemoved:    itemsRemoved,
		ClassesCredited: classesCredited,
	})
}

// replay resolves a duplicate settlement id: same payer and amount means
// the earlier outcome is returned as-is, anything else is a conflict.
func (h *PaymentsHandler) replay(ctx *gin.Context, cctx context.Context, req payment.SettleRequest) {
	prior, err := h.ledger.GetBySettlementID(cctx, req.SettlementID)

	if err != nil {
		// row not visible yet: a concurrent settle holds the insert
		h.countSettlement("conflict")
		RespondConflict(ctx, "settlement_conflict", "Settlement is being processed")
		return
	}

	if prior.PayerEmail != req.PayerEmail || prior.AmountMinor != req.AmountMinor ||
		!sameIDSet(prior.ClassIDs, dedupe(req.ClassIDs)) ||
		!sameIDSet(prior.CartItemIDs, dedupe(req.CartItemIDs)) {
		h.countSettlement("conflict")
		RespondConflict(ctx, "settlement_conflict", "Settlement id was already used with a different payload")
		return
	}

	h.countSettlement("replayed")

	ctx.JSON(http.StatusOK, payment.SettlementResult{
		PaymentRecordID: prior.ID,
		ItemsRemoved:    prior.ItemsRemoved,
		ClassesCredited: prior.ClassesCredited,
		Replayed:        true,
	})
}

// Purchases is deliberately optional: an account with no purchase history
// sends nothing and gets an empty list back.
type SettledClassesRequest struct {
	Purchases []payment.PurchaseGroup `json:"purchases"`
}

// SettledClasses expands prior purchase groups into class listings. The
// groups are flattened and deduped; ids whose listing no longer exists are
// dropped silently.
func (h *PaymentsHandler) SettledClasses(ctx *gin.Context) {
	var req SettledClassesRequest

	if !BindJSON(ctx, &req) {
		return
	}

	flat := make([]string, 0)

	for _, group := range req.Purchases {
		flat = append(flat, group.ClassIDs...)
	}

	ids := dedupe(flat)

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, err := h.classes.GetByIDs(cctx, ids)

	if err != nil {
		RespondInternal(ctx, "Could not resolve purchased classes")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *PaymentsHandler) History(ctx *gin.Context) {
	email, ok := middlewares.EmailFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	records, err := h.ledger.ListByPayer(cctx, email)

	if err != nil {
		RespondInternal(ctx, "Could not list payment history")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": records,
		"count": len(records),
	})
}

func (h *PaymentsHandler) countSettlement(result string) {
	if h.prom != nil {
		h.prom.SettlementsTotal.WithLabelValues(result).Inc()
	}
}

// sameIDSet compares two id lists ignoring order.
func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)

	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}

	return true
}

// dedupe preserves first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}
