package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/payvault/ledger-service/internal/domain"
)

// fixedVerifier compares secrets verbatim so fixtures can store the plaintext
// where a bcrypt hash would live.
func fixedVerifier(hash, plaintext string) bool {
	return hash == plaintext
}

type chargeFixture struct {
	customer       *domain.Account
	business       *domain.Account
	customerWallet *domain.Wallet
	businessWallet *domain.Wallet
	card           *domain.VirtualCard
	key            *domain.APIKey
	now            time.Time
}

func newChargeFixture(customerBalance, businessBalance int64) *chargeFixture {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	customer := &domain.Account{ID: uuid.New(), AccountType: domain.AccountTypePersonal}
	business := &domain.Account{ID: uuid.New(), AccountType: domain.AccountTypeBusiness, BusinessVerified: true}
	return &chargeFixture{
		customer: customer,
		business: business,
		customerWallet: &domain.Wallet{
			ID:        uuid.New(),
			AccountID: customer.ID,
			Balance:   decimal.NewFromInt(customerBalance),
			Currency:  "USD",
		},
		businessWallet: &domain.Wallet{
			ID:        uuid.New(),
			AccountID: business.ID,
			Balance:   decimal.NewFromInt(businessBalance),
			Currency:  "USD",
		},
		card: &domain.VirtualCard{
			ID:            uuid.New(),
			AccountID:     customer.ID,
			CardNumber:    "4539148803436467",
			CVVHash:       "123",
			Active:        true,
			ExpiresAt:     now.AddDate(1, 0, 0),
			DailyLimit:    decimal.NewFromInt(1000),
			DailySpent:    decimal.Zero,
			LastResetDate: now,
		},
		key: &domain.APIKey{
			ID:               uuid.New(),
			BusinessID:       business.ID,
			Active:           true,
			VolumeResetDate:  now,
			RequestResetDate: now,
		},
		now: now,
	}
}

func (f *chargeFixture) state() chargeState {
	return chargeState{
		Card:           f.card,
		Customer:       f.customer,
		Business:       f.business,
		CustomerWallet: f.customerWallet,
		BusinessWallet: f.businessWallet,
		Key:            f.key,
	}
}

func (f *chargeFixture) chargeParams(amount int64, cvv string) ChargeParams {
	return ChargeParams{
		BusinessID: f.business.ID,
		APIKeyID:   f.key.ID,
		CardNumber: f.card.CardNumber,
		CVV:        cvv,
		Amount:     decimal.NewFromInt(amount),
		Now:        f.now,
	}
}

func TestBuildChargeThenRefundRestoresBalances(t *testing.T) {
	f := newChargeFixture(500, 200)

	payment, err := buildCharge(f.state(), f.chargeParams(150, "123"), fixedVerifier)
	if err != nil {
		t.Fatalf("buildCharge returned error: %v", err)
	}

	if payment.Type != domain.TransactionTypePayment || payment.Status != domain.TransactionStatusCompleted {
		t.Fatalf("unexpected payment type/status: %s/%s", payment.Type, payment.Status)
	}
	if !payment.SenderBalanceBefore.Equal(decimal.NewFromInt(500)) || !payment.SenderBalanceAfter.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("customer side moved %s -> %s, want 500 -> 350", payment.SenderBalanceBefore, payment.SenderBalanceAfter)
	}
	if !payment.RecipientBalanceBefore.Equal(decimal.NewFromInt(200)) || !payment.RecipientBalanceAfter.Equal(decimal.NewFromInt(350)) {
		t.Fatalf("business side moved %s -> %s, want 200 -> 350", payment.RecipientBalanceBefore, payment.RecipientBalanceAfter)
	}
	if payment.CardLast4 != "6467" {
		t.Fatalf("expected card last4 6467, got %q", payment.CardLast4)
	}
	if payment.Category != domain.CategoryB2C {
		t.Fatalf("expected category B2C, got %q", payment.Category)
	}
	if !f.card.DailySpent.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("card daily spent = %s, want 150", f.card.DailySpent)
	}
	if !f.key.DailyVolume.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("key daily volume = %s, want 150", f.key.DailyVolume)
	}

	// Apply the balances the way the committing transaction does.
	f.customerWallet.Balance = *payment.SenderBalanceAfter
	f.businessWallet.Balance = *payment.RecipientBalanceAfter

	refundParams := RefundParams{
		BusinessID:            f.business.ID,
		APIKeyID:              f.key.ID,
		OriginalTransactionID: payment.ID,
		Amount:                decimal.NewFromInt(150),
		Reason:                "customer return",
		Now:                   f.now.Add(time.Hour),
	}
	refund, err := buildRefund(payment, f.business, f.customer, f.businessWallet, f.customerWallet, refundParams)
	if err != nil {
		t.Fatalf("buildRefund returned error: %v", err)
	}

	if payment.Status != domain.TransactionStatusRefunded {
		t.Fatalf("original status = %q, want refunded", payment.Status)
	}
	if refund.OriginalTransactionID == nil || *refund.OriginalTransactionID != payment.ID {
		t.Fatal("refund row does not link the original payment")
	}
	if !refund.SenderBalanceAfter.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("business balance after refund = %s, want 200", refund.SenderBalanceAfter)
	}
	if !refund.RecipientBalanceAfter.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("customer balance after refund = %s, want 500", refund.RecipientBalanceAfter)
	}

	// The flipped original refuses a second refund.
	if _, err := buildRefund(payment, f.business, f.customer, f.businessWallet, f.customerWallet, refundParams); !errors.Is(err, domain.ErrAlreadyRefunded) {
		t.Fatalf("second refund: expected ErrAlreadyRefunded, got %v", err)
	}
}

func TestBuildChargeInsufficientFundsLeavesStateUntouched(t *testing.T) {
	f := newChargeFixture(100, 200)

	txn, err := buildCharge(f.state(), f.chargeParams(150, "123"), fixedVerifier)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if txn != nil {
		t.Fatal("failed charge must not produce a transaction row")
	}
	if !f.card.DailySpent.IsZero() {
		t.Fatalf("card daily spent moved to %s on a failed charge", f.card.DailySpent)
	}
	if !f.key.DailyVolume.IsZero() {
		t.Fatalf("key daily volume moved to %s on a failed charge", f.key.DailyVolume)
	}
	if !f.customerWallet.Balance.Equal(decimal.NewFromInt(100)) || !f.businessWallet.Balance.Equal(decimal.NewFromInt(200)) {
		t.Fatal("wallet balances changed on a failed charge")
	}
}

func TestBuildChargeResolvesBusinessLast(t *testing.T) {
	t.Run("card failure wins over missing business", func(t *testing.T) {
		f := newChargeFixture(500, 200)
		st := f.state()
		st.Business = nil
		if _, err := buildCharge(st, f.chargeParams(150, "999"), fixedVerifier); !errors.Is(err, domain.ErrInvalidCVV) {
			t.Fatalf("expected ErrInvalidCVV, got %v", err)
		}
	})

	t.Run("missing business account surfaces last", func(t *testing.T) {
		f := newChargeFixture(500, 200)
		st := f.state()
		st.Business = nil
		if _, err := buildCharge(st, f.chargeParams(150, "123"), fixedVerifier); !errors.Is(err, domain.ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("missing business wallet surfaces last", func(t *testing.T) {
		f := newChargeFixture(500, 200)
		st := f.state()
		st.BusinessWallet = nil
		if _, err := buildCharge(st, f.chargeParams(150, "123"), fixedVerifier); !errors.Is(err, domain.ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})
}

func TestBuildTransfer(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	sender := &domain.Account{ID: uuid.New(), AccountType: domain.AccountTypePersonal}
	recipient := &domain.Account{ID: uuid.New(), AccountType: domain.AccountTypePersonal}
	senderWallet := &domain.Wallet{ID: uuid.New(), AccountID: sender.ID, Balance: decimal.NewFromInt(300), Currency: "USD"}
	recipientWallet := &domain.Wallet{ID: uuid.New(), AccountID: recipient.ID, Balance: decimal.NewFromInt(50), Currency: "USD"}

	t.Run("moves amount between the wallets", func(t *testing.T) {
		txn, err := buildTransfer(sender, recipient, senderWallet, recipientWallet, decimal.NewFromInt(120), "rent", now)
		if err != nil {
			t.Fatalf("buildTransfer returned error: %v", err)
		}
		if !txn.SenderBalanceAfter.Equal(decimal.NewFromInt(180)) || !txn.RecipientBalanceAfter.Equal(decimal.NewFromInt(170)) {
			t.Fatalf("balances moved to %s/%s, want 180/170", txn.SenderBalanceAfter, txn.RecipientBalanceAfter)
		}
		if txn.Category != domain.CategoryC2C {
			t.Fatalf("expected category C2C, got %q", txn.Category)
		}
	})

	t.Run("rejects insufficient funds", func(t *testing.T) {
		if _, err := buildTransfer(sender, recipient, senderWallet, recipientWallet, decimal.NewFromInt(301), "", now); !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
	})

	t.Run("rejects self transfer", func(t *testing.T) {
		if _, err := buildTransfer(sender, sender, senderWallet, senderWallet, decimal.NewFromInt(10), "", now); !errors.Is(err, domain.ErrSameAccount) {
			t.Fatalf("expected ErrSameAccount, got %v", err)
		}
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		if _, err := buildTransfer(sender, recipient, senderWallet, recipientWallet, decimal.Zero, "", now); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})
}

func TestBuildDepositAndWithdraw(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	accountID := uuid.New()
	wallet := &domain.Wallet{ID: uuid.New(), AccountID: accountID, Balance: decimal.NewFromInt(80), Currency: "USD"}
	reserve := &domain.BankReserve{Balance: domain.InitialReserveBalance}

	t.Run("deposit draws from the reserve", func(t *testing.T) {
		txn, err := buildDeposit(reserve, wallet, accountID, decimal.NewFromInt(300), "", now)
		if err != nil {
			t.Fatalf("buildDeposit returned error: %v", err)
		}
		if !txn.RecipientBalanceBefore.Equal(decimal.NewFromInt(80)) || !txn.RecipientBalanceAfter.Equal(decimal.NewFromInt(380)) {
			t.Fatalf("deposit moved %s -> %s, want 80 -> 380", txn.RecipientBalanceBefore, txn.RecipientBalanceAfter)
		}
	})

	t.Run("deposit rejected when the reserve cannot cover it", func(t *testing.T) {
		drained := &domain.BankReserve{Balance: decimal.NewFromInt(10)}
		if _, err := buildDeposit(drained, wallet, accountID, decimal.NewFromInt(300), "", now); !errors.Is(err, domain.ErrReserveInsufficient) {
			t.Fatalf("expected ErrReserveInsufficient, got %v", err)
		}
	})

	t.Run("withdraw returns funds to the reserve", func(t *testing.T) {
		txn, err := buildWithdraw(wallet, accountID, decimal.NewFromInt(30), "", now)
		if err != nil {
			t.Fatalf("buildWithdraw returned error: %v", err)
		}
		if !txn.SenderBalanceAfter.Equal(decimal.NewFromInt(50)) {
			t.Fatalf("withdraw left balance %s, want 50", txn.SenderBalanceAfter)
		}
	})

	t.Run("withdraw rejected beyond the balance", func(t *testing.T) {
		if _, err := buildWithdraw(wallet, accountID, decimal.NewFromInt(81), "", now); !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
	})
}
