package storefront

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mktplace/pkg/listings"
	"mktplace/pkg/models"
	"mktplace/pkg/network"
	"mktplace/pkg/wallet"

	"go.uber.org/zap"
)

const (
	PurchaseMessage = "Purchase functionality would be implemented here!"
	ContactMessage  = "Contact seller functionality would be implemented here!"
)

// ErrLoginRequired is returned by actions that need a connected wallet.
var ErrLoginRequired = errors.New("login required")

// Dialer opens a wallet session.
type Dialer func(ctx context.Context) (wallet.Session, error)

// Storefront ties the wallet session, the network monitor and the catalog
// together for the presentation layers.
type Storefront struct {
	net     *network.Service
	catalog *listings.Catalog
	dial    Dialer
	logger  *zap.Logger

	mu      sync.Mutex
	session wallet.Session
}

func New(net *network.Service, catalog *listings.Catalog, dial Dialer, logger *zap.Logger) *Storefront {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storefront{
		net:     net,
		catalog: catalog,
		dial:    dial,
		logger:  logger.Named("storefront"),
	}
}

// Login connects the wallet and starts network monitoring. It is a no-op when
// already logged in. The dial runs without holding the storefront lock; if
// another login wins meanwhile, the extra session is closed.
func (s *Storefront) Login(ctx context.Context) (wallet.Session, error) {
	s.mu.Lock()
	current := s.session
	s.mu.Unlock()
	if current != nil {
		return current, nil
	}
	if s.dial == nil {
		return nil, wallet.ErrNoWalletEndpoint
	}

	session, err := s.dial(ctx)
	if err != nil {
		s.logger.Error("Wallet login failed", zap.Error(err))
		return nil, fmt.Errorf("login: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		closeSession(session)
		return s.session, nil
	}
	s.session = session
	s.net.SetSession(session)
	s.logger.Info("Wallet connected", zap.String("address", session.Address()))
	return session, nil
}

func closeSession(session wallet.Session) {
	if c, ok := session.(interface{ Close() }); ok {
		c.Close()
	}
}

// Logout stops network monitoring and closes the session.
func (s *Storefront) Logout() {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()
	if session == nil {
		return
	}

	s.net.SetSession(nil)
	closeSession(session)
	s.logger.Info("Wallet disconnected")
}

// Session returns the connected session, or nil.
func (s *Storefront) Session() wallet.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Address returns the connected address, or "".
func (s *Storefront) Address() string {
	if session := s.Session(); session != nil {
		return session.Address()
	}
	return ""
}

func (s *Storefront) Network() *network.Service { return s.net }
func (s *Storefront) Catalog() *listings.Catalog { return s.catalog }

// Listing looks a listing up by id.
func (s *Storefront) Listing(id int) (models.Listing, error) {
	return s.catalog.ByID(id)
}

// Purchase returns the placeholder purchase message for a logged in user.
func (s *Storefront) Purchase(id int) (string, error) {
	l, err := s.catalog.ByID(id)
	if err != nil {
		return "", err
	}
	if s.Session() == nil {
		return "", ErrLoginRequired
	}
	s.logger.Info("Purchase requested", zap.Int("listing", l.ID), zap.String("price", l.Price))
	return PurchaseMessage, nil
}

// ContactSeller returns the placeholder contact message.
func (s *Storefront) ContactSeller(id int) (string, error) {
	l, err := s.catalog.ByID(id)
	if err != nil {
		return "", err
	}
	s.logger.Info("Contact seller requested", zap.Int("listing", l.ID))
	return ContactMessage, nil
}

// Close logs out and stops the network monitor.
func (s *Storefront) Close() {
	s.Logout()
	s.net.Close()
}
