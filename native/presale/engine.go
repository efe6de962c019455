package presale

import (
	"encoding/binary"
	"errors"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"dogxsale/core/events"
	"dogxsale/core/types"
)

var (
	errNilState = errors.New("presale engine: state not configured")
)

// engineState is the view of the persistence layer the engine requires. The
// production implementation is Ledger over the state manager; tests use an
// in-memory mock.
type engineState interface {
	PresalePut(*Presale) error
	PresaleGet(id [32]byte) (*Presale, bool)
	PresaleDelete(id [32]byte) error
	UserPut(saleID [32]byte, user *UserInfo) error
	UserGet(saleID [32]byte, buyer [20]byte) (*UserInfo, bool)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// SaleParams carries the admin-supplied configuration for a new sale.
type SaleParams struct {
	Seed          uint64
	Levels        [LevelCount]Level
	SoftCapAmount uint64
	HardCapAmount uint64
	PriceScale    uint64
	StartTime     uint64
	EndTime       uint64
}

// Engine owns the sale lifecycle and the allocation algorithm. Every entry
// point is a single synchronous unit of work guarded by one mutex, so
// concurrent purchases against the same sale serialize on the shared tier
// pointer and totals; a failed operation leaves all state untouched.
type Engine struct {
	mu      sync.Mutex
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a presale engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(presaleEvent{evt: evt})
}

// SaleID derives the deterministic identifier for an admin's sale.
func SaleID(admin [20]byte, seed uint64) [32]byte {
	var seedBytes [8]byte
	binary.LittleEndian.PutUint64(seedBytes[:], seed)
	return ethcrypto.Keccak256Hash([]byte("dogx_presale"), admin[:], seedBytes[:])
}

// VaultAddress derives the custody address holding a sale's assets.
func VaultAddress(id [32]byte) [20]byte {
	hash := ethcrypto.Keccak256([]byte("dogx_vault"), id[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

func (e *Engine) loadSale(id [32]byte) (*Presale, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sale, ok := e.state.PresaleGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return sale, nil
}

func (e *Engine) storeSale(p *Presale) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.PresalePut(p)
}

// balance returns the stored balance of the given asset symbol.
func balance(account *types.Account, symbol string) *big.Int {
	switch symbol {
	case TokenSymbol:
		return account.BalanceDGX
	case PaymentSymbol:
		return account.BalanceUSDT
	default:
		return big.NewInt(0)
	}
}

func setBalance(account *types.Account, symbol string, value *big.Int) {
	switch symbol {
	case TokenSymbol:
		account.BalanceDGX = value
	case PaymentSymbol:
		account.BalanceUSDT = value
	}
}

// transfer moves amount of the asset between accounts. The balance check runs
// before any mutation so a failed transfer leaves both accounts untouched.
func (e *Engine) transfer(from, to [20]byte, symbol string, amount uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == 0 {
		return nil
	}
	amt := new(big.Int).SetUint64(amount)
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = fromAcc.Normalize()
	toAcc = toAcc.Normalize()
	if balance(fromAcc, symbol).Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	setBalance(fromAcc, symbol, new(big.Int).Sub(balance(fromAcc, symbol), amt))
	setBalance(toAcc, symbol, new(big.Int).Add(balance(toAcc, symbol), amt))
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// vaultBalance reads the vault's balance of the asset, clamped to uint64.
func (e *Engine) vaultBalance(id [32]byte, symbol string) (uint64, error) {
	vault := VaultAddress(id)
	account, err := e.state.GetAccount(vault[:])
	if err != nil {
		return 0, err
	}
	bal := balance(account.Normalize(), symbol)
	if !bal.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return bal.Uint64(), nil
}

// Create initialises and persists a new sale with zeroed counters. The ladder
// prices must be non-zero and non-decreasing tier over tier.
func (e *Engine) Create(admin [20]byte, params SaleParams) (*Presale, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	scale := params.PriceScale
	if scale == 0 {
		scale = DefaultPriceScale
	}
	var prev uint64
	for i := range params.Levels {
		if params.Levels[i].UnitPrice == 0 {
			return nil, ErrInvalidPrice
		}
		if params.Levels[i].UnitPrice < prev {
			return nil, ErrInvalidPrice
		}
		prev = params.Levels[i].UnitPrice
		params.Levels[i].Sold = 0
	}
	if params.SoftCapAmount > params.HardCapAmount {
		return nil, ErrInvalidAmount
	}
	if params.EndTime == 0 || params.EndTime <= params.StartTime {
		return nil, ErrInvalidAmount
	}
	id := SaleID(admin, params.Seed)
	if _, exists := e.state.PresaleGet(id); exists {
		return nil, ErrAlreadyExists
	}
	now := e.now()
	sale := &Presale{
		ID:            id,
		Admin:         admin,
		TokenSymbol:   TokenSymbol,
		PaymentSymbol: PaymentSymbol,
		Levels:        params.Levels,
		SoftCapAmount: params.SoftCapAmount,
		HardCapAmount: params.HardCapAmount,
		PriceScale:    scale,
		StartTime:     params.StartTime,
		EndTime:       params.EndTime,
		CreatedAt:     uint64(now),
	}
	if err := e.storeSale(sale); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(sale))
	return sale.Clone(), nil
}

// Deposit moves sale tokens from the admin into the sale vault, growing the
// inventory available for allocation. Legal any time before close.
func (e *Engine) Deposit(id [32]byte, caller [20]byte, amount uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sale, err := e.loadSale(id)
	if err != nil {
		return err
	}
	if sale.Admin != caller {
		return ErrUnauthorized
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	deposited, err := checkedAdd(sale.DepositTokenAmount, amount)
	if err != nil {
		return err
	}
	if err := e.transfer(caller, VaultAddress(id), sale.TokenSymbol, amount); err != nil {
		return err
	}
	sale.DepositTokenAmount = deposited
	if err := e.storeSale(sale); err != nil {
		return err
	}
	e.emit(NewDepositedEvent(sale, amount))
	return nil
}

// Start flips the sale live and stamps the start time. Fails when the sale is
// already live or the window has already elapsed.
func (e *Engine) Start(id [32]byte, caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sale, err := e.loadSale(id)
	if err != nil {
		return err
	}
	if sale.Admin != caller {
		return ErrUnauthorized
	}
	if sale.IsLive {
		return ErrAlreadyLive
	}
	now := e.now()
	if now >= 0 && uint64(now) >= sale.EndTime {
		return ErrSaleEnded
	}
	sale.IsLive = true
	sale.StartTime = uint64(now)
	if err := e.storeSale(sale); err != nil {
		return err
	}
	e.emit(NewStartedEvent(sale))
	return nil
}

// End irreversibly stops purchases. Only legal while the sale is live; a sale
// past its end time is also treated as ended by every admission check, so an
// explicit End is bookkeeping rather than a safety requirement.
func (e *Engine) End(id [32]byte, caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sale, err := e.loadSale(id)
	if err != nil {
		return err
	}
	if sale.Admin != caller {
		return ErrUnauthorized
	}
	if !sale.IsLive {
		return ErrAlreadyEnded
	}
	sale.IsLive = false
	if err := e.storeSale(sale); err != nil {
		return err
	}
	e.emit(NewEndedEvent(sale))
	return nil
}

// Buy converts the payment into sale tokens by walking the level ladder. The
// full effect is computed speculatively and committed only when the walk ends
// in a satisfiable state; leftover payment is accepted (and left uncharged)
// only when the purchase drove the sale into its hard cap.
func (e *Engine) Buy(id [32]byte, buyer [20]byte, payment uint64) (*PurchaseReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sale, err := e.loadSale(id)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if !sale.IsLive {
		return nil, ErrNotLive
	}
	if now >= 0 && uint64(now) >= sale.EndTime {
		return nil, ErrSaleEnded
	}
	plan, err := planAllocation(sale, payment)
	if err != nil {
		return nil, err
	}
	user, exists := e.state.UserGet(id, buyer)
	if !exists {
		user = &UserInfo{Buyer: buyer}
	}
	contributed, err := checkedAdd(user.Contributed, plan.paymentSpent)
	if err != nil {
		return nil, err
	}
	allocated, err := checkedAdd(user.Allocated, plan.tokensOut)
	if err != nil {
		return nil, err
	}
	if err := e.transfer(buyer, VaultAddress(id), sale.PaymentSymbol, plan.paymentSpent); err != nil {
		return nil, err
	}
	plan.apply(sale)
	user.Contributed = contributed
	user.Allocated = allocated
	user.BuyTime = uint64(now)
	if err := e.state.UserPut(id, user); err != nil {
		return nil, err
	}
	if err := e.storeSale(sale); err != nil {
		return nil, err
	}
	receipt := &PurchaseReceipt{TokensOut: plan.tokensOut, PaymentSpent: plan.paymentSpent}
	e.emit(NewPurchaseEvent(sale, buyer, receipt))
	return receipt, nil
}

// Claim transfers earned tokens to the buyer after a successful sale. Amount
// zero claims the full allocation; a non-zero amount may not exceed it.
// Claiming is single-shot and mutually exclusive with refunds.
func (e *Engine) Claim(id [32]byte, buyer [20]byte, amount uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sale, err := e.loadSale(id)
	if err != nil {
		return 0, err
	}
	now := e.now()
	if !sale.Ended(now) {
		return 0, ErrSaleNotEnded
	}
	if sale.SoldTokenAmount < sale.SoftCapAmount {
		return 0, ErrSoftCapNotReached
	}
	user, exists := e.state.UserGet(id, buyer)
	if !exists {
		return 0, ErrUserNotFound
	}
	if user.Settled() {
		return 0, ErrAlreadySettled
	}
	if amount == 0 {
		amount = user.Allocated
	}
	if amount > user.Allocated {
		return 0, ErrInvalidAmount
	}
	if err := e.transfer(VaultAddress(id), buyer, sale.TokenSymbol, amount); err != nil {
		return 0, err
	}
	user.ClaimedToken = true
	user.ClaimAmount = amount
	user.ClaimTime = uint64(now)
	if err := e.state.UserPut(id, user); err != nil {
		return 0, err
	}
	e.emit(NewClaimedEvent(sale, buyer, amount))
	return amount, nil
}

// Refund returns the buyer's full contribution after a sale that missed its
// soft cap. Single-shot and mutually exclusive with claims.
func (e *Engine) Refund(id [32]byte, buyer [20]byte) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sale, err := e.loadSale(id)
	if err != nil {
		return 0, err
	}
	now := e.now()
	if !sale.Ended(now) {
		return 0, ErrSaleNotEnded
	}
	if sale.SoldTokenAmount >= sale.SoftCapAmount {
		return 0, ErrSoftCapReached
	}
	user, exists := e.state.UserGet(id, buyer)
	if !exists {
		return 0, ErrUserNotFound
	}
	if user.Settled() {
		return 0, ErrAlreadySettled
	}
	amount := user.Contributed
	if err := e.transfer(VaultAddress(id), buyer, sale.PaymentSymbol, amount); err != nil {
		return 0, err
	}
	user.ClaimedRefund = true
	user.ClaimTime = uint64(now)
	if err := e.state.UserPut(id, user); err != nil {
		return 0, err
	}
	e.emit(NewRefundedEvent(sale, buyer, amount))
	return amount, nil
}

// WithdrawRaised moves the raised payment asset from the vault to the admin.
// Legal once the sale ended with its soft cap met.
func (e *Engine) WithdrawRaised(id [32]byte, caller [20]byte) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sale, err := e.loadSale(id)
	if err != nil {
		return 0, err
	}
	if sale.Admin != caller {
		return 0, ErrUnauthorized
	}
	if !sale.Ended(e.now()) {
		return 0, ErrSaleNotEnded
	}
	if sale.SoldTokenAmount < sale.SoftCapAmount {
		return 0, ErrSoftCapNotReached
	}
	amount, err := e.vaultBalance(id, sale.PaymentSymbol)
	if err != nil {
		return 0, err
	}
	if err := e.transfer(VaultAddress(id), caller, sale.PaymentSymbol, amount); err != nil {
		return 0, err
	}
	e.emit(NewWithdrawnEvent(sale, sale.PaymentSymbol, amount))
	return amount, nil
}

// WithdrawUnsold returns unsold inventory to the admin once the sale ended.
// After a failed sale the whole deposit is recoverable since contributors are
// made whole in the payment asset.
func (e *Engine) WithdrawUnsold(id [32]byte, caller [20]byte) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sale, err := e.loadSale(id)
	if err != nil {
		return 0, err
	}
	if sale.Admin != caller {
		return 0, ErrUnauthorized
	}
	if !sale.Ended(e.now()) {
		return 0, ErrSaleNotEnded
	}
	var amount uint64
	if sale.SoldTokenAmount >= sale.SoftCapAmount {
		amount, err = checkedSub(sale.DepositTokenAmount, sale.SoldTokenAmount)
		if err != nil {
			return 0, err
		}
		vault, err := e.vaultBalance(id, sale.TokenSymbol)
		if err != nil {
			return 0, err
		}
		if vault < amount {
			amount = vault
		}
	} else {
		amount, err = e.vaultBalance(id, sale.TokenSymbol)
		if err != nil {
			return 0, err
		}
	}
	if err := e.transfer(VaultAddress(id), caller, sale.TokenSymbol, amount); err != nil {
		return 0, err
	}
	e.emit(NewWithdrawnEvent(sale, sale.TokenSymbol, amount))
	return amount, nil
}

// Close destroys the sale record. Only legal once the sale is no longer live
// and both vault balances have been fully withdrawn.
func (e *Engine) Close(id [32]byte, caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sale, err := e.loadSale(id)
	if err != nil {
		return err
	}
	if sale.Admin != caller {
		return ErrUnauthorized
	}
	if sale.IsLive {
		return ErrSaleNotEnded
	}
	tokenLeft, err := e.vaultBalance(id, sale.TokenSymbol)
	if err != nil {
		return err
	}
	paymentLeft, err := e.vaultBalance(id, sale.PaymentSymbol)
	if err != nil {
		return err
	}
	if tokenLeft != 0 || paymentLeft != 0 {
		return ErrCustodyNotEmpty
	}
	if err := e.state.PresaleDelete(id); err != nil {
		return err
	}
	e.emit(NewClosedEvent(sale))
	return nil
}

// GetSale returns a copy of the stored sale record.
func (e *Engine) GetSale(id [32]byte) (*Presale, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sale, err := e.loadSale(id)
	if err != nil {
		return nil, err
	}
	return sale.Clone(), nil
}

// GetUser returns a copy of the buyer's contribution record.
func (e *Engine) GetUser(id [32]byte, buyer [20]byte) (*UserInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, errNilState
	}
	if _, ok := e.state.PresaleGet(id); !ok {
		return nil, ErrNotFound
	}
	user, ok := e.state.UserGet(id, buyer)
	if !ok {
		return nil, ErrUserNotFound
	}
	return user.Clone(), nil
}
