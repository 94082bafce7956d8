package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yogalab/classhub/internal/domain/class"
	"github.com/yogalab/classhub/internal/domain/job"
	"github.com/yogalab/classhub/internal/domain/payment"
	"github.com/yogalab/classhub/internal/domain/user"
	"github.com/yogalab/classhub/internal/http/handlers"
	"github.com/yogalab/classhub/internal/payments"
)

// fakeTx satisfies pgx.Tx so the handler's transaction plumbing can run
// against in-memory fakes. Only Commit and Rollback are observed.

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}
func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                               { return nil }

type fakeLedger struct {
	tx             *fakeTx
	createFn       func(ctx context.Context, tx pgx.Tx, rec payment.Record) error
	updateCountsFn func(ctx context.Context, tx pgx.Tx, recordID string, itemsRemoved, classesCredited int) error
	getFn          func(ctx context.Context, settlementID string) (payment.Record, error)
	listFn         func(ctx context.Context, payerEmail string) ([]payment.Record, error)
}

func (f *fakeLedger) BeginTx(ctx context.Context) (pgx.Tx, error) {
	if f.tx == nil {
		f.tx = &fakeTx{}
	}
	return f.tx, nil
}

func (f *fakeLedger) CreateTx(ctx context.Context, tx pgx.Tx, rec payment.Record) error {
	if f.createFn != nil {
		return f.createFn(ctx, tx, rec)
	}
	return nil
}

func (f *fakeLedger) UpdateCountsTx(ctx context.Context, tx pgx.Tx, recordID string, itemsRemoved, classesCredited int) error {
	if f.updateCountsFn != nil {
		return f.updateCountsFn(ctx, tx, recordID, itemsRemoved, classesCredited)
	}
	return nil
}

func (f *fakeLedger) GetBySettlementID(ctx context.Context, settlementID string) (payment.Record, error) {
	if f.getFn != nil {
		return f.getFn(ctx, settlementID)
	}
	return payment.Record{}, payment.ErrNotFound
}

func (f *fakeLedger) ListByPayer(ctx context.Context, payerEmail string) ([]payment.Record, error) {
	if f.listFn != nil {
		return f.listFn(ctx, payerEmail)
	}
	return []payment.Record{}, nil
}

type fakeCartConsumer struct {
	deleteManyFn func(ctx context.Context, tx pgx.Tx, ownerEmail string, ids []string) (int, error)
}

func (f *fakeCartConsumer) DeleteManyTx(ctx context.Context, tx pgx.Tx, ownerEmail string, ids []string) (int, error) {
	if f.deleteManyFn != nil {
		return f.deleteManyFn(ctx, tx, ownerEmail, ids)
	}
	return len(ids), nil
}

type fakeCreditor struct {
	incrementFn func(ctx context.Context, tx pgx.Tx, id string) (bool, error)
	getByIDsFn  func(ctx context.Context, ids []string) ([]class.Class, error)
}

func (f *fakeCreditor) IncrementEnrollmentTx(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	if f.incrementFn != nil {
		return f.incrementFn(ctx, tx, id)
	}
	return true, nil
}

func (f *fakeCreditor) GetByIDs(ctx context.Context, ids []string) ([]class.Class, error) {
	if f.getByIDsFn != nil {
		return f.getByIDsFn(ctx, ids)
	}
	return []class.Class{}, nil
}

type fakeJobsCreator struct {
	createTxFn func(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error)
}

func (f *fakeJobsCreator) CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error) {
	if f.createTxFn != nil {
		return f.createTxFn(ctx, tx, req)
	}
	return job.New(req), nil
}

type fakeProcessor struct {
	createIntentFn func(ctx context.Context, in payments.CreateIntentInput) (payments.Intent, error)
}

func (f *fakeProcessor) CreateIntent(ctx context.Context, in payments.CreateIntentInput) (payments.Intent, error) {
	if f.createIntentFn != nil {
		return f.createIntentFn(ctx, in)
	}
	return payments.Intent{}, nil
}

type paymentsDeps struct {
	ledger  *fakeLedger
	cart    *fakeCartConsumer
	classes *fakeCreditor
	jobs    *fakeJobsCreator
}

func newPaymentsHandler(deps paymentsDeps, processor payments.Processor) *handlers.PaymentsHandler {
	if deps.ledger == nil {
		deps.ledger = &fakeLedger{}
	}
	if deps.cart == nil {
		deps.cart = &fakeCartConsumer{}
	}
	if deps.classes == nil {
		deps.classes = &fakeCreditor{}
	}
	if deps.jobs == nil {
		deps.jobs = &fakeJobsCreator{}
	}

	return handlers.NewPaymentsHandler(deps.ledger, deps.cart, deps.classes, deps.jobs, processor, nil, testLogger(), "thb")
}

func settleRouter(h *handlers.PaymentsHandler) *gin.Engine {
	return setupRouter(http.MethodPost, "/payments/settle", []gin.HandlerFunc{
		withIdentity("student@yogalab.io", user.RoleStudent),
	}, h.Settle)
}

func doSettle(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/payments/settle", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestSettleHandler_Applied(t *testing.T) {
	settlementID := newUUID()
	classA := newUUID()
	classB := newUUID()
	itemA := newUUID()

	ledger := &fakeLedger{}
	jobsCreator := &fakeJobsCreator{}

	var createdJob *job.CreateRequest
	jobsCreator.createTxFn = func(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error) {
		createdJob = &req
		return job.New(req), nil
	}

	h := newPaymentsHandler(paymentsDeps{ledger: ledger, jobs: jobsCreator}, nil)
	r := settleRouter(h)

	body := `{
		"settlementId": "` + settlementID + `",
		"amountMinor": 90000,
		"cartItemIds": ["` + itemA + `"],
		"classIds": ["` + classA + `", "` + classB + `"]
	}`

	w := doSettle(t, r, body)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp payment.SettlementResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.ItemsRemoved != 1 || resp.ClassesCredited != 2 {
		t.Fatalf("unexpected result: %+v", resp)
	}
	if resp.Replayed {
		t.Fatalf("fresh settlement should not be marked replayed")
	}

	if !ledger.tx.committed {
		t.Fatalf("transaction was never committed")
	}

	if createdJob == nil {
		t.Fatalf("confirmation job was not enqueued")
	}
	if createdJob.IdempotencyKey == nil || *createdJob.IdempotencyKey != "settlement:confirm:"+settlementID {
		t.Fatalf("unexpected idempotency key: %v", createdJob.IdempotencyKey)
	}
}

func TestSettleHandler_MissingClassIsSkipped(t *testing.T) {
	present := newUUID()
	deleted := newUUID()

	classes := &fakeCreditor{}
	classes.incrementFn = func(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
		return id == present, nil
	}

	h := newPaymentsHandler(paymentsDeps{classes: classes}, nil)
	r := settleRouter(h)

	body := `{
		"settlementId": "` + newUUID() + `",
		"amountMinor": 45000,
		"classIds": ["` + present + `", "` + deleted + `"]
	}`

	w := doSettle(t, r, body)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp payment.SettlementResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.ClassesCredited != 1 {
		t.Fatalf("got classesCredited=%d, want 1", resp.ClassesCredited)
	}
}

func TestSettleHandler_EmptySetsStillSettle(t *testing.T) {
	h := newPaymentsHandler(paymentsDeps{
		cart: &fakeCartConsumer{
			deleteManyFn: func(ctx context.Context, tx pgx.Tx, ownerEmail string, ids []string) (int, error) {
				if len(ids) != 0 {
					return 0, errors.New("expected no cart items")
				}
				return 0, nil
			},
		},
	}, nil)
	r := settleRouter(h)

	w := doSettle(t, r, `{"settlementId": "`+newUUID()+`", "amountMinor": 0}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp payment.SettlementResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.ItemsRemoved != 0 || resp.ClassesCredited != 0 {
		t.Fatalf("empty settlement should report zero counts: %+v", resp)
	}
}

func TestSettleHandler_DuplicateReplays(t *testing.T) {
	settlementID := newUUID()

	ledger := &fakeLedger{}
	ledger.createFn = func(ctx context.Context, tx pgx.Tx, rec payment.Record) error {
		return payment.ErrDuplicateSettlement
	}
	ledger.getFn = func(ctx context.Context, sid string) (payment.Record, error) {
		return payment.Record{
			ID:              "prior-record",
			SettlementID:    sid,
			PayerEmail:      "student@yogalab.io",
			AmountMinor:     90000,
			ItemsRemoved:    2,
			ClassesCredited: 2,
			CreatedAt:       time.Now().UTC(),
		}, nil
	}

	h := newPaymentsHandler(paymentsDeps{ledger: ledger}, nil)
	r := settleRouter(h)

	w := doSettle(t, r, `{"settlementId": "`+settlementID+`", "amountMinor": 90000}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp payment.SettlementResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if !resp.Replayed {
		t.Fatalf("duplicate settlement should be marked replayed: %+v", resp)
	}
	if resp.PaymentRecordID != "prior-record" {
		t.Fatalf("replay should return the stored record id, got %q", resp.PaymentRecordID)
	}
	if resp.ItemsRemoved != 2 || resp.ClassesCredited != 2 {
		t.Fatalf("replay should return the stored counts: %+v", resp)
	}
}

func TestSettleHandler_DuplicateWithDifferentPayloadConflicts(t *testing.T) {
	settlementID := newUUID()

	ledger := &fakeLedger{}
	ledger.createFn = func(ctx context.Context, tx pgx.Tx, rec payment.Record) error {
		return payment.ErrDuplicateSettlement
	}
	ledger.getFn = func(ctx context.Context, sid string) (payment.Record, error) {
		return payment.Record{
			SettlementID: sid,
			PayerEmail:   "student@yogalab.io",
			AmountMinor:  45000, // prior settlement had a different amount
		}, nil
	}

	h := newPaymentsHandler(paymentsDeps{ledger: ledger}, nil)
	r := settleRouter(h)

	w := doSettle(t, r, `{"settlementId": "`+settlementID+`", "amountMinor": 90000}`)

	if w.Code != http.StatusConflict {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusConflict, w.Body.String())
	}
}

func TestSettleHandler_DuplicateWithDifferentClassSetConflicts(t *testing.T) {
	settlementID := newUUID()
	storedClass := newUUID()
	otherClass := newUUID()

	ledger := &fakeLedger{}
	ledger.createFn = func(ctx context.Context, tx pgx.Tx, rec payment.Record) error {
		return payment.ErrDuplicateSettlement
	}
	ledger.getFn = func(ctx context.Context, sid string) (payment.Record, error) {
		return payment.Record{
			SettlementID: sid,
			PayerEmail:   "student@yogalab.io",
			AmountMinor:  90000,
			ClassIDs:     []string{storedClass},
		}, nil
	}

	h := newPaymentsHandler(paymentsDeps{ledger: ledger}, nil)
	r := settleRouter(h)

	// payer and amount match, but the class set diverges
	body := `{
		"settlementId": "` + settlementID + `",
		"amountMinor": 90000,
		"classIds": ["` + otherClass + `"]
	}`

	w := doSettle(t, r, body)

	if w.Code != http.StatusConflict {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusConflict, w.Body.String())
	}
}

func TestSettleHandler_ReplayIgnoresIDOrder(t *testing.T) {
	settlementID := newUUID()
	classA := newUUID()
	classB := newUUID()

	ledger := &fakeLedger{}
	ledger.createFn = func(ctx context.Context, tx pgx.Tx, rec payment.Record) error {
		return payment.ErrDuplicateSettlement
	}
	ledger.getFn = func(ctx context.Context, sid string) (payment.Record, error) {
		return payment.Record{
			ID:           "prior-record",
			SettlementID: sid,
			PayerEmail:   "student@yogalab.io",
			AmountMinor:  90000,
			ClassIDs:     []string{classA, classB},
		}, nil
	}

	h := newPaymentsHandler(paymentsDeps{ledger: ledger}, nil)
	r := settleRouter(h)

	// same ids, reversed order: still the same settlement
	body := `{
		"settlementId": "` + settlementID + `",
		"amountMinor": 90000,
		"classIds": ["` + classB + `", "` + classA + `"]
	}`

	w := doSettle(t, r, body)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp payment.SettlementResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !resp.Replayed {
		t.Fatalf("same payload in a different order should replay: %+v", resp)
	}
}

func TestSettleHandler_DuplicateNotYetVisibleConflicts(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.createFn = func(ctx context.Context, tx pgx.Tx, rec payment.Record) error {
		return payment.ErrDuplicateSettlement
	}
	ledger.getFn = func(ctx context.Context, sid string) (payment.Record, error) {
		// the concurrent settle has not committed yet
		return payment.Record{}, payment.ErrNotFound
	}

	h := newPaymentsHandler(paymentsDeps{ledger: ledger}, nil)
	r := settleRouter(h)

	w := doSettle(t, r, `{"settlementId": "`+newUUID()+`", "amountMinor": 90000}`)

	if w.Code != http.StatusConflict {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusConflict, w.Body.String())
	}
}

func TestSettleHandler_DuplicateIDsCountOnce(t *testing.T) {
	classID := newUUID()

	credits := 0
	classes := &fakeCreditor{}
	classes.incrementFn = func(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
		credits++
		return true, nil
	}

	h := newPaymentsHandler(paymentsDeps{classes: classes}, nil)
	r := settleRouter(h)

	body := `{
		"settlementId": "` + newUUID() + `",
		"amountMinor": 45000,
		"classIds": ["` + classID + `", "` + classID + `"]
	}`

	w := doSettle(t, r, body)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	if credits != 1 {
		t.Fatalf("a repeated class id should be credited once, got %d credits", credits)
	}
}

func TestSettleHandler_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad_settlement_id", body: `{"settlementId": "nope", "amountMinor": 100}`},
		{name: "bad_class_id", body: `{"amountMinor": 100, "classIds": ["nope"]}`},
		{name: "bad_cart_item_id", body: `{"amountMinor": 100, "cartItemIds": ["nope"]}`},
		{name: "negative_amount", body: `{"amountMinor": -1}`},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			h := newPaymentsHandler(paymentsDeps{}, nil)
			r := settleRouter(h)

			w := doSettle(t, r, tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

func TestCreateIntentHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		processor      payments.Processor
		wantStatusCode int
	}{
		{
			name: "success",
			body: `{"amountMinor": 90000}`,
			processor: &fakeProcessor{
				createIntentFn: func(ctx context.Context, in payments.CreateIntentInput) (payments.Intent, error) {
					if in.AmountMinor != 90000 || in.Currency != "thb" {
						return payments.Intent{}, errors.New("input not passed through")
					}
					return payments.Intent{ProviderRef: "src_test_123", AmountMinor: in.AmountMinor, Currency: in.Currency, Flow: "offline"}, nil
				},
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name:           "processor_not_configured",
			body:           `{"amountMinor": 90000}`,
			processor:      nil,
			wantStatusCode: http.StatusServiceUnavailable,
		},
		{
			name: "processor_down",
			body: `{"amountMinor": 90000}`,
			processor: &fakeProcessor{
				createIntentFn: func(ctx context.Context, in payments.CreateIntentInput) (payments.Intent, error) {
					return payments.Intent{}, errors.New("gateway timeout")
				},
			},
			wantStatusCode: http.StatusServiceUnavailable,
		},
		{
			name:           "zero_amount",
			body:           `{"amountMinor": 0}`,
			wantStatusCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			h := newPaymentsHandler(paymentsDeps{}, tt.processor)
			r := setupRouter(http.MethodPost, "/payments/intent", []gin.HandlerFunc{
				withIdentity("student@yogalab.io", user.RoleStudent),
			}, h.CreateIntent)

			req := httptest.NewRequest(http.MethodPost, "/payments/intent", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantStatusCode == http.StatusCreated {
				var resp struct {
					SettlementID string `json:"settlementId"`
				}
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if resp.SettlementID == "" {
					t.Fatalf("expected a minted settlement id")
				}
			}
		})
	}
}

func TestSettledClassesHandler_FlattensAndDedupes(t *testing.T) {
	classA := newUUID()
	classB := newUUID()

	classes := &fakeCreditor{}
	classes.getByIDsFn = func(ctx context.Context, ids []string) ([]class.Class, error) {
		if len(ids) != 2 {
			return nil, errors.New("expected two unique ids after flatten+dedupe")
		}
		return []class.Class{
			{ID: classA, Title: "Morning Vinyasa", Status: class.StatusApproved},
			{ID: classB, Title: "Evening Yin", Status: class.StatusApproved},
		}, nil
	}

	h := newPaymentsHandler(paymentsDeps{classes: classes}, nil)
	r := setupRouter(http.MethodPost, "/payments/settled-classes", []gin.HandlerFunc{
		withIdentity("student@yogalab.io", user.RoleStudent),
	}, h.SettledClasses)

	body := `{
		"purchases": [
			{"classIds": ["` + classA + `", "` + classB + `"]},
			{"classIds": ["` + classA + `"]}
		]
	}`

	req := httptest.NewRequest(http.MethodPost, "/payments/settled-classes", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("got count %d, want 2", resp.Count)
	}
}

func TestSettledClassesHandler_AbsentPurchasesReturnEmpty(t *testing.T) {
	for _, body := range []string{`{}`, `{"purchases": null}`, `{"purchases": []}`} {
		classes := &fakeCreditor{}
		classes.getByIDsFn = func(ctx context.Context, ids []string) ([]class.Class, error) {
			if len(ids) != 0 {
				return nil, errors.New("expected no ids")
			}
			return []class.Class{}, nil
		}

		h := newPaymentsHandler(paymentsDeps{classes: classes}, nil)
		r := setupRouter(http.MethodPost, "/payments/settled-classes", nil, h.SettledClasses)

		req := httptest.NewRequest(http.MethodPost, "/payments/settled-classes", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("body %s: got status %d, want %d, body=%s", body, w.Code, http.StatusOK, w.Body.String())
		}

		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if resp.Count != 0 {
			t.Fatalf("body %s: got count %d, want 0", body, resp.Count)
		}
	}
}

func TestHistoryHandler(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.listFn = func(ctx context.Context, payerEmail string) ([]payment.Record, error) {
		if payerEmail != "student@yogalab.io" {
			return nil, errors.New("payer scope missing")
		}
		return []payment.Record{
			{ID: newUUID(), SettlementID: newUUID(), PayerEmail: payerEmail, AmountMinor: 90000},
		}, nil
	}

	h := newPaymentsHandler(paymentsDeps{ledger: ledger}, nil)
	r := setupRouter(http.MethodGet, "/payments/history", []gin.HandlerFunc{
		withIdentity("student@yogalab.io", user.RoleStudent),
	}, h.History)

	req := httptest.NewRequest(http.MethodGet, "/payments/history", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("got count %d, want 1", resp.Count)
	}
}
