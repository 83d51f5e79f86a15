// Package resilience содержит Circuit Breaker для обращений к источникам.
//
// Breaker считает последовательные неудачи. После MaxFailures он
// открывается и отклоняет вызовы до истечения Timeout, затем пропускает
// пробные вызовы (Half-Open). SuccessThreshold успешных пробных вызовов
// закрывают его, любая неудача открывает снова.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen - breaker открыт, вызов не выполнялся
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config - конфигурация Circuit Breaker
type Config struct {
	Enabled bool `yaml:"enabled"`

	// MaxFailures - количество последовательных ошибок для открытия
	MaxFailures uint32 `yaml:"max_failures"`

	// Timeout - время в Open состоянии перед переходом в Half-Open
	Timeout time.Duration `yaml:"timeout"`

	// SuccessThreshold - успешных вызовов в Half-Open для закрытия (по умолчанию 1)
	SuccessThreshold uint32 `yaml:"success_threshold"`
}

// Validate проверяет конфигурацию включенного breaker
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxFailures == 0 {
		return fmt.Errorf("max_failures must be greater than 0")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1
	}
	return nil
}

// DefaultConfig - 5 ошибок подряд, 10 минут в Open
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		MaxFailures:      5,
		Timeout:          10 * time.Minute,
		SuccessThreshold: 1,
	}
}

// State - состояние Circuit Breaker
type State int

const (
	// StateClosed - нормальная работа, вызовы проходят
	StateClosed State = iota
	// StateHalfOpen - пробные вызовы после Timeout
	StateHalfOpen
	// StateOpen - вызовы отклоняются
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Counts - счетчики текущего состояния
type Counts struct {
	Requests             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// StateChangeFunc вызывается после смены состояния, вне блокировки
type StateChangeFunc func(name string, from, to State)

// Option настраивает Breaker
type Option func(*Breaker)

// WithClock подменяет часы
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// OnStateChange задает callback смены состояния
func OnStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// Breaker - защита от повторных обращений к недоступному источнику
type Breaker struct {
	name     string
	cfg      Config
	now      func() time.Time
	onChange StateChangeFunc

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New создает Breaker
func New(name string, cfg Config, opts ...Option) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	b := &Breaker{name: name, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Execute выполняет fn, если breaker не открыт. Отмена ctx не считается
// неудачей. В открытом состоянии возвращает ошибку, оборачивающую ErrCircuitOpen.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.cfg.Enabled {
		return fn(ctx)
	}

	generation, err := b.before()
	if err != nil {
		return err
	}

	err = fn(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}
	b.after(generation, err == nil)
	return err
}

func (b *Breaker) before() (uint64, error) {
	b.mu.Lock()
	var from State
	changed := false
	if b.state == StateOpen && !b.now().Before(b.expiry) {
		from, changed = b.setState(StateHalfOpen)
	}
	state, generation, expiry := b.state, b.generation, b.expiry
	b.mu.Unlock()

	if changed {
		b.notify(from, StateHalfOpen)
	}
	if state == StateOpen {
		return generation, fmt.Errorf("%s: %w (retry after %s)", b.name, ErrCircuitOpen, expiry.Format(time.RFC3339))
	}
	return generation, nil
}

func (b *Breaker) after(generation uint64, success bool) {
	b.mu.Lock()
	if generation != b.generation {
		// Состояние сменилось во время вызова, результат устарел
		b.mu.Unlock()
		return
	}

	b.counts.Requests++
	var (
		from    State
		to      State
		changed bool
	)
	if success {
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.cfg.SuccessThreshold {
			to = StateClosed
			from, changed = b.setState(to)
		}
	} else {
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		if b.state == StateHalfOpen || b.counts.ConsecutiveFailures >= b.cfg.MaxFailures {
			to = StateOpen
			from, changed = b.setState(to)
		}
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
}

// setState меняет состояние, lock уже взят
func (b *Breaker) setState(to State) (State, bool) {
	from := b.state
	if from == to {
		return from, false
	}
	b.state = to
	b.generation++
	b.counts = Counts{}
	if to == StateOpen {
		b.expiry = b.now().Add(b.cfg.Timeout)
	}
	return from, true
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

// State возвращает текущее состояние. Истекший Open сообщается как Half-Open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !b.now().Before(b.expiry) {
		return StateHalfOpen
	}
	return b.state
}

// Group - breakers с общей конфигурацией, создаваемые по имени
type Group struct {
	cfg  Config
	opts []Option

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup создает группу
func NewGroup(cfg Config, opts ...Option) (*Group, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	return &Group{
		cfg:      cfg,
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}, nil
}

// Get возвращает breaker по имени, создавая его при первом обращении
func (g *Group) Get(name string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.breakers[name]; ok {
		return b
	}
	// Конфигурация уже проверена в NewGroup
	b, _ := New(name, g.cfg, g.opts...)
	g.breakers[name] = b
	return b
}

// States возвращает состояния всех breakers
func (g *Group) States() map[string]State {
	g.mu.Lock()
	breakers := make([]*Breaker, 0, len(g.breakers))
	for _, b := range g.breakers {
		breakers = append(breakers, b)
	}
	g.mu.Unlock()

	out := make(map[string]State, len(breakers))
	for _, b := range breakers {
		out[b.name] = b.State()
	}
	return out
}
