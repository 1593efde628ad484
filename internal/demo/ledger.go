package demo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack"
)

var (
	ErrAccountExists     = errors.New("account already exists")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSameAccount       = errors.New("source and destination are the same account")
)

// Ledger is an in-memory set of account balances.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]float64
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]float64)}
}

func (l *Ledger) CreateAccount(id string, balance float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[id]; exists {
		return fmt.Errorf("%w: %s", ErrAccountExists, id)
	}
	l.accounts[id] = balance
	return nil
}

func (l *Ledger) Balance(id string) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.accounts[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return b, nil
}

// Transfer moves amount between two existing accounts.
func (l *Ledger) Transfer(from, to string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return ErrSameAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal, fromOK := l.accounts[from]
	toBal, toOK := l.accounts[to]
	if !fromOK || !toOK {
		return ErrAccountNotFound
	}
	if fromBal < amount {
		return fmt.Errorf("%w: %s has %.2f, needs %.2f", ErrInsufficientFunds, from, fromBal, amount)
	}
	l.accounts[from] = fromBal - amount
	l.accounts[to] = toBal + amount
	return nil
}

// Total returns the sum of all balances.
func (l *Ledger) Total() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var sum float64
	for _, b := range l.accounts {
		sum += b
	}
	return sum
}

type TransferRequest struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

// Handler exposes the ledger over HTTP: POST /account, GET /balance?id=,
// POST /transfer.
func (l *Ledger) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/account", l.handleCreateAccount)
	mux.HandleFunc("/balance", l.handleBalance)
	mux.HandleFunc("/transfer", l.handleTransfer)
	return mux
}

func (l *Ledger) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID      string  `json:"id"`
		Balance float64 `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := l.CreateAccount(req.ID, req.Balance); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (l *Ledger) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	b, err := l.Balance(id)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	fmt.Fprintf(w, "%.2f", b)
}

func (l *Ledger) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	switch err := l.Transfer(req.From, req.To, req.Amount); {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ErrAccountNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrSameAccount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// LedgerScenario performs a burst of random transfers, each measured as a
// "ledger_transfer" invocation. Overdrafts surface as failed invocations.
type LedgerScenario struct {
	ledger    *Ledger
	accounts  []string
	transfers int
	pace      float64
	once      sync.Once
}

func NewLedgerScenario(l *Ledger, pace float64) *LedgerScenario {
	return &LedgerScenario{
		ledger:    l,
		accounts:  []string{"alice", "bob", "carol", "dave"},
		transfers: 20,
		pace:      pace,
	}
}

func (s *LedgerScenario) Name() string { return "ledger" }

func (s *LedgerScenario) Run(ctx context.Context, mon *datatrack.Monitor) error {
	s.once.Do(func() {
		for _, id := range s.accounts {
			_ = s.ledger.CreateAccount(id, 1000)
		}
	})

	var failed int
	for i := 0; i < s.transfers; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		fi := rand.IntN(len(s.accounts))
		from := s.accounts[fi]
		to := s.accounts[(fi+1+rand.IntN(len(s.accounts)-1))%len(s.accounts)]
		amount := float64(rand.IntN(400) + 1)

		err := mon.RunContext(ctx, "ledger_transfer", func(ctx context.Context) error {
			if err := sleep(ctx, scaled(time.Duration(rand.IntN(20))*time.Millisecond, s.pace)); err != nil {
				return err
			}
			return s.ledger.Transfer(from, to, amount)
		})
		if err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transfers rejected", failed, s.transfers)
	}
	return nil
}
