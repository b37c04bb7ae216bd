package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"venue-billing-backend/config"
	"venue-billing-backend/internal/billing"
	"venue-billing-backend/internal/store"
)

// ErrMemberIDRequired is returned when a member is given without an id.
var ErrMemberIDRequired = errors.New("session: member id is required")

// Notifier is told about every resource that became free.
type Notifier interface {
	Dispatch(resourceID string)
}

// Service runs billing operations against persisted sessions. Each operation reads the
// session, applies one engine step and writes it back inside a single transaction;
// a concurrent write makes the transaction fail with billing.ErrConflict and the
// operation is retried from a fresh read.
type Service struct {
	store      store.Store
	notifier   Notifier
	tableModel billing.Model
	hallModel  billing.Model
	maxRetries int
	now        func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a session service. notifier may be nil.
func NewService(cfg *config.Config, st store.Store, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:      st,
		notifier:   notifier,
		tableModel: cfg.Billing.TableModel,
		hallModel:  cfg.Billing.HallModel,
		maxRetries: cfg.Billing.MaxRetries,
		now:        time.Now,
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) engine(tx store.Store) *billing.Engine {
	opts := []billing.Option{billing.WithClock(s.now)}
	if s.tableModel != "" {
		opts = append(opts, billing.WithDefaultModel(billing.KindTable, s.tableModel))
	}
	if s.hallModel != "" {
		opts = append(opts, billing.WithDefaultModel(billing.KindHall, s.hallModel))
	}
	return billing.NewEngine(tx, tx, tx, opts...)
}

// CreateRequest opens a session on one table or hall.
type CreateRequest struct {
	Kind       billing.Kind
	Model      billing.Model
	ResourceID string
	Members    []billing.MemberInfo
}

// Create opens and persists a new session.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*billing.Session, error) {
	var created *billing.Session
	err := s.withRetry(ctx, "create", func() error {
		return s.store.Transaction(ctx, func(tx store.Store) error {
			members, err := resolveMembers(ctx, tx, req.Members)
			if err != nil {
				return err
			}
			var resourceIDs []string
			if req.ResourceID != "" {
				resourceIDs = []string{req.ResourceID}
			}
			session, err := s.engine(tx).Create(ctx, billing.CreateParams{
				Kind:        req.Kind,
				Model:       req.Model,
				ResourceIDs: resourceIDs,
				Members:     members,
			})
			if err != nil {
				return err
			}
			if err := tx.CreateSession(ctx, session); err != nil {
				return err
			}
			created = session
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Session %s opened on %s with %d member(s)", created.ID, req.ResourceID, len(created.Members))
	return created, nil
}

// Get returns an open session.
func (s *Service) Get(ctx context.Context, id string) (*billing.Session, error) {
	session, _, err := s.store.GetSession(ctx, id)
	return session, err
}

// List returns every open session, oldest first.
func (s *Service) List(ctx context.Context) ([]*billing.Session, error) {
	return s.store.LoadActiveSessions(ctx)
}

// ActiveSessionFor returns the open session a member is in.
func (s *Service) ActiveSessionFor(ctx context.Context, memberID string) (*billing.Session, error) {
	sessionID, found, err := s.store.FindActiveSessionFor(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("member %s has no open session: %w", memberID, store.ErrNotFound)
	}
	return s.Get(ctx, sessionID)
}

// AddMember joins a member to an open session.
func (s *Service) AddMember(ctx context.Context, id string, info billing.MemberInfo) (*billing.Session, error) {
	return s.mutate(ctx, id, "add member", func(tx store.Store, e *billing.Engine, session *billing.Session) error {
		members, err := resolveMembers(ctx, tx, []billing.MemberInfo{info})
		if err != nil {
			return err
		}
		_, err = e.AddMember(ctx, session, members[0])
		return err
	})
}

// RemoveMember checks a member out, optionally settling their bill on the spot.
func (s *Service) RemoveMember(ctx context.Context, id, memberID string, settleNow bool) (*billing.Member, error) {
	var departed *billing.Member
	_, err := s.mutate(ctx, id, "remove member", func(_ store.Store, e *billing.Engine, session *billing.Session) error {
		member, err := e.RemoveMember(ctx, session, memberID, settleNow)
		if err != nil {
			return err
		}
		departed = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return departed, nil
}

// AdjustOrder changes the quantity of a product on a member's tab.
func (s *Service) AdjustOrder(ctx context.Context, id, memberID, productID string, delta int) (billing.OrderLine, error) {
	var line billing.OrderLine
	_, err := s.mutate(ctx, id, "adjust order", func(tx store.Store, e *billing.Engine, session *billing.Session) error {
		product, err := tx.Product(ctx, productID)
		if err != nil {
			return err
		}
		line, err = e.AdjustOrder(ctx, session, memberID, billing.OrderInput{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Delta:     delta,
		})
		return err
	})
	return line, err
}

// Transfer moves a session to another table or hall and announces the freed one.
func (s *Service) Transfer(ctx context.Context, id, resourceID string) (*billing.Session, error) {
	var freed billing.ResourceSpan
	session, err := s.mutate(ctx, id, "transfer", func(_ store.Store, e *billing.Engine, session *billing.Session) error {
		freed, _ = session.Current()
		return e.TransferResource(ctx, session, resourceID)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Session %s moved from %s to %s", id, freed.ResourceID, resourceID)
	s.announce(freed)
	return session, nil
}

// Total prices an open session as of now without changing it.
func (s *Service) Total(ctx context.Context, id string) (billing.Totals, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return billing.Totals{}, err
	}
	return s.engine(s.store).LiveTotal(session)
}

// EndRequest carries the checkout options.
type EndRequest struct {
	Promocode     string
	PaymentMethod string
}

// End closes a session, archives its receipt and announces the freed resource.
func (s *Service) End(ctx context.Context, id string, req EndRequest) (billing.HistorySession, error) {
	var (
		history billing.HistorySession
		freed   billing.ResourceSpan
	)
	err := s.withRetry(ctx, "end", func() error {
		return s.store.Transaction(ctx, func(tx store.Store) error {
			session, version, err := tx.GetSession(ctx, id)
			if err != nil {
				return err
			}
			var promocode *billing.Promocode
			if code := strings.TrimSpace(req.Promocode); code != "" {
				found, err := lookupPromocode(ctx, tx, code)
				if err != nil {
					return err
				}
				promocode = &found
			}
			freed, _ = session.Current()
			history, err = s.engine(tx).End(ctx, session, billing.EndParams{
				Promocode:     promocode,
				PaymentMethod: req.PaymentMethod,
			})
			if err != nil {
				return err
			}
			return tx.CloseSession(ctx, history, version)
		})
	})
	if err != nil {
		return billing.HistorySession{}, err
	}
	log.Printf("Session %s closed: grand total %s, amount due %s", id, history.GrandTotal, history.AmountDue)
	s.announce(freed)
	return history, nil
}

// History lists closed sessions.
func (s *Service) History(ctx context.Context, filter store.HistoryFilter) ([]billing.HistorySession, error) {
	return s.store.ListHistory(ctx, filter)
}

// ValidatePromocode returns the code if it could be applied right now.
func (s *Service) ValidatePromocode(ctx context.Context, code string) (billing.Promocode, error) {
	promocode, err := lookupPromocode(ctx, s.store, code)
	if err != nil {
		return billing.Promocode{}, err
	}
	if err := promocode.Validate(s.now()); err != nil {
		return billing.Promocode{}, err
	}
	return promocode, nil
}

// Restock adds qty units of a product and returns the new stock level.
func (s *Service) Restock(ctx context.Context, productID string, qty int) (int, error) {
	stock, err := s.store.Restock(ctx, productID, qty)
	if err != nil {
		return 0, err
	}
	log.Printf("Product %s restocked by %d, now %d", productID, qty, stock)
	return stock, nil
}

// mutate applies fn to a freshly read session and writes it back at the version it
// was read at.
func (s *Service) mutate(ctx context.Context, id, op string, fn func(tx store.Store, e *billing.Engine, session *billing.Session) error) (*billing.Session, error) {
	var result *billing.Session
	err := s.withRetry(ctx, op, func() error {
		return s.store.Transaction(ctx, func(tx store.Store) error {
			session, version, err := tx.GetSession(ctx, id)
			if err != nil {
				return err
			}
			if err := fn(tx, s.engine(tx), session); err != nil {
				return err
			}
			if err := tx.UpdateSession(ctx, session, version); err != nil {
				return err
			}
			result = session
			return nil
		})
	})
	return result, err
}

func (s *Service) withRetry(ctx context.Context, op string, attempt func() error) error {
	var err error
	for i := 1; i <= s.maxRetries; i++ {
		err = attempt()
		if !billing.IsRetryable(err) {
			return err
		}
		log.Printf("Warning: %s attempt %d/%d hit a concurrent update: %v", op, i, s.maxRetries, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

func (s *Service) announce(span billing.ResourceSpan) {
	if s.notifier == nil || span.ResourceID == "" {
		return
	}
	seen := make(map[string]bool, len(span.Units)+1)
	for _, id := range append([]string{span.ResourceID}, span.Units...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		s.notifier.Dispatch(id)
	}
}

// resolveMembers fills in member details. A request that carries a display name
// registers or refreshes the member; one with only an id must name a known member.
func resolveMembers(ctx context.Context, tx store.Store, infos []billing.MemberInfo) ([]billing.MemberInfo, error) {
	resolved := make([]billing.MemberInfo, 0, len(infos))
	for _, info := range infos {
		info.ID = strings.TrimSpace(info.ID)
		if info.ID == "" {
			return nil, ErrMemberIDRequired
		}
		if info.DisplayName != "" {
			if err := tx.RememberMember(ctx, info); err != nil {
				return nil, err
			}
			resolved = append(resolved, info)
			continue
		}
		known, err := tx.Lookup(ctx, info.ID)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, known)
	}
	return resolved, nil
}

func lookupPromocode(ctx context.Context, promocodes billing.PromocodeStore, code string) (billing.Promocode, error) {
	found, ok, err := promocodes.FindByCode(ctx, code)
	if err != nil {
		return billing.Promocode{}, err
	}
	if !ok {
		return billing.Promocode{}, fmt.Errorf("promocode %q does not exist: %w", code, billing.ErrPromocodeInvalid)
	}
	return found, nil
}
