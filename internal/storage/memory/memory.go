// Package memory implements storage.Store in process memory. It backs tests
// and local development; data is lost on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vingo-app/vingo-backend/internal/domain"
	"github.com/vingo-app/vingo-backend/internal/storage"
)

// Store implements an in-memory storage
type Store struct {
	users       *UserStore
	shops       *ShopStore
	items       *ItemStore
	orders      *OrderStore
	assignments *AssignmentStore
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		users:       &UserStore{data: make(map[string]*domain.User)},
		shops:       &ShopStore{data: make(map[string]*domain.Shop)},
		items:       &ItemStore{data: make(map[string]*domain.Item)},
		orders:      &OrderStore{data: make(map[string]*domain.Order)},
		assignments: &AssignmentStore{data: make(map[string]*domain.DeliveryAssignment)},
	}
}

func (s *Store) Users() storage.UserStore             { return s.users }
func (s *Store) Shops() storage.ShopStore             { return s.shops }
func (s *Store) Items() storage.ItemStore             { return s.items }
func (s *Store) Orders() storage.OrderStore           { return s.orders }
func (s *Store) Assignments() storage.AssignmentStore { return s.assignments }
func (s *Store) Close() error                         { return nil }
func (s *Store) Ping(ctx context.Context) error       { return nil }

// UserStore implements in-memory user storage
type UserStore struct {
	mu   sync.RWMutex
	data map[string]*domain.User
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	if u.Location != nil {
		loc := *u.Location
		c.Location = &loc
	}
	return &c
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[user.ID]; exists {
		return storage.ErrAlreadyExists
	}
	for _, u := range s.data {
		if u.Email == user.Email {
			return storage.ErrAlreadyExists
		}
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.data[user.ID] = cloneUser(user)
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneUser(user), nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.data {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *UserStore) Update(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[user.ID]; !exists {
		return storage.ErrNotFound
	}

	user.UpdatedAt = time.Now()
	s.data[user.ID] = cloneUser(user)
	return nil
}

func (s *UserStore) UpdateLocation(ctx context.Context, id string, location domain.GeoPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	user.Location = &location
	user.UpdatedAt = time.Now()
	return nil
}

func (s *UserStore) FindNearby(ctx context.Context, role domain.Role, point domain.GeoPoint, maxMeters float64) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type candidate struct {
		user     *domain.User
		distance float64
	}
	var found []candidate
	for _, user := range s.data {
		if user.Role != role || user.Location == nil {
			continue
		}
		d := point.DistanceMeters(*user.Location)
		if d <= maxMeters {
			found = append(found, candidate{user: cloneUser(user), distance: d})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].distance < found[j].distance })

	users := make([]*domain.User, 0, len(found))
	for _, c := range found {
		users = append(users, c.user)
	}
	return users, nil
}

// ShopStore implements in-memory shop storage
type ShopStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Shop
}

func (s *ShopStore) Create(ctx context.Context, shop *domain.Shop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[shop.ID]; exists {
		return storage.ErrAlreadyExists
	}
	for _, existing := range s.data {
		if existing.OwnerID == shop.OwnerID {
			return storage.ErrAlreadyExists
		}
	}

	now := time.Now()
	shop.CreatedAt = now
	shop.UpdatedAt = now
	c := *shop
	s.data[shop.ID] = &c
	return nil
}

func (s *ShopStore) GetByID(ctx context.Context, id string) (*domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shop, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	c := *shop
	return &c, nil
}

func (s *ShopStore) GetByOwner(ctx context.Context, ownerID string) (*domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, shop := range s.data {
		if shop.OwnerID == ownerID {
			c := *shop
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *ShopStore) GetByCity(ctx context.Context, city string) ([]*domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shops := make([]*domain.Shop, 0)
	for _, shop := range s.data {
		if strings.EqualFold(shop.City, city) {
			c := *shop
			shops = append(shops, &c)
		}
	}
	sort.Slice(shops, func(i, j int) bool { return shops[i].CreatedAt.Before(shops[j].CreatedAt) })
	return shops, nil
}

func (s *ShopStore) Update(ctx context.Context, shop *domain.Shop) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[shop.ID]; !exists {
		return storage.ErrNotFound
	}

	shop.UpdatedAt = time.Now()
	c := *shop
	s.data[shop.ID] = &c
	return nil
}

// ItemStore implements in-memory item storage
type ItemStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Item
}

func (s *ItemStore) Create(ctx context.Context, item *domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[item.ID]; exists {
		return storage.ErrAlreadyExists
	}

	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	c := *item
	s.data[item.ID] = &c
	return nil
}

func (s *ItemStore) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	c := *item
	return &c, nil
}

func (s *ItemStore) Update(ctx context.Context, item *domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[item.ID]; !exists {
		return storage.ErrNotFound
	}

	item.UpdatedAt = time.Now()
	c := *item
	s.data[item.ID] = &c
	return nil
}

func (s *ItemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[id]; !exists {
		return storage.ErrNotFound
	}
	delete(s.data, id)
	return nil
}

func (s *ItemStore) GetByShop(ctx context.Context, shopID string) ([]*domain.Item, error) {
	return s.GetByShops(ctx, []string{shopID})
}

func (s *ItemStore) GetByShops(ctx context.Context, shopIDs []string) ([]*domain.Item, error) {
	return s.filter(shopIDs, func(*domain.Item) bool { return true }), nil
}

func (s *ItemStore) Search(ctx context.Context, shopIDs []string, query string) ([]*domain.Item, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	return s.filter(shopIDs, func(item *domain.Item) bool {
		return strings.Contains(strings.ToLower(item.Name), q) ||
			strings.Contains(strings.ToLower(item.Category), q)
	}), nil
}

func (s *ItemStore) filter(shopIDs []string, match func(*domain.Item) bool) []*domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(shopIDs))
	for _, id := range shopIDs {
		wanted[id] = struct{}{}
	}

	items := make([]*domain.Item, 0)
	for _, item := range s.data {
		if _, ok := wanted[item.ShopID]; !ok || !match(item) {
			continue
		}
		c := *item
		items = append(items, &c)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items
}

// OrderStore implements in-memory order storage
type OrderStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Order
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.ShopOrders = make([]domain.ShopOrder, len(o.ShopOrders))
	for i, so := range o.ShopOrders {
		so.Items = append([]domain.OrderItem(nil), so.Items...)
		if so.DeliveredAt != nil {
			t := *so.DeliveredAt
			so.DeliveredAt = &t
		}
		c.ShopOrders[i] = so
	}
	return &c
}

func (s *OrderStore) Create(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[order.ID]; exists {
		return storage.ErrAlreadyExists
	}

	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	s.data[order.ID] = cloneOrder(order)
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *OrderStore) Update(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[order.ID]; !exists {
		return storage.ErrNotFound
	}

	order.UpdatedAt = time.Now()
	s.data[order.ID] = cloneOrder(order)
	return nil
}

func (s *OrderStore) UpdateShopOrder(ctx context.Context, orderID, shopID string, update storage.ShopOrderUpdate) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.data[orderID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	so := order.ShopOrder(shopID)
	if so == nil {
		return nil, storage.ErrNotFound
	}
	if !update.Matches(so) {
		return nil, storage.ErrConflict
	}

	update.Apply(so)
	order.UpdatedAt = time.Now()
	return cloneOrder(order), nil
}

func (s *OrderStore) GetByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.filter(func(o *domain.Order) bool { return o.UserID == userID }), nil
}

func (s *OrderStore) GetByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error) {
	return s.filter(func(o *domain.Order) bool {
		for _, so := range o.ShopOrders {
			if so.OwnerID == ownerID {
				return true
			}
		}
		return false
	}), nil
}

func (s *OrderStore) GetByDeliveryBoy(ctx context.Context, deliveryBoyID string) ([]*domain.Order, error) {
	return s.filter(func(o *domain.Order) bool {
		for _, so := range o.ShopOrders {
			if so.AssignedDeliveryBoy == deliveryBoyID {
				return true
			}
		}
		return false
	}), nil
}

func (s *OrderStore) filter(match func(*domain.Order) bool) []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*domain.Order, 0)
	for _, order := range s.data {
		if match(order) {
			orders = append(orders, cloneOrder(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders
}

// AssignmentStore implements in-memory delivery assignment storage
type AssignmentStore struct {
	mu   sync.RWMutex
	data map[string]*domain.DeliveryAssignment
}

func cloneAssignment(a *domain.DeliveryAssignment) *domain.DeliveryAssignment {
	c := *a
	c.BroadcastedTo = append([]string(nil), a.BroadcastedTo...)
	if a.AcceptedAt != nil {
		t := *a.AcceptedAt
		c.AcceptedAt = &t
	}
	return &c
}

func (s *AssignmentStore) Create(ctx context.Context, assignment *domain.DeliveryAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[assignment.ID]; exists {
		return storage.ErrAlreadyExists
	}

	now := time.Now()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	s.data[assignment.ID] = cloneAssignment(assignment)
	return nil
}

func (s *AssignmentStore) GetByID(ctx context.Context, id string) (*domain.DeliveryAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneAssignment(a), nil
}

func (s *AssignmentStore) Update(ctx context.Context, assignment *domain.DeliveryAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[assignment.ID]; !exists {
		return storage.ErrNotFound
	}

	assignment.UpdatedAt = time.Now()
	s.data[assignment.ID] = cloneAssignment(assignment)
	return nil
}

func (s *AssignmentStore) Claim(ctx context.Context, id, deliveryBoyID string) (*domain.DeliveryAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[id]
	if !exists || a.Status != domain.AssignmentBroadcasted || !a.OfferedTo(deliveryBoyID) {
		return nil, storage.ErrNotFound
	}
	for _, other := range s.data {
		if other.Status == domain.AssignmentAssigned && other.AssignedTo == deliveryBoyID {
			return nil, storage.ErrConflict
		}
	}

	now := time.Now()
	a.Status = domain.AssignmentAssigned
	a.AssignedTo = deliveryBoyID
	a.AcceptedAt = &now
	a.UpdatedAt = now
	return cloneAssignment(a), nil
}

func (s *AssignmentStore) GetBroadcastedTo(ctx context.Context, deliveryBoyID string) ([]*domain.DeliveryAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.DeliveryAssignment, 0)
	for _, a := range s.data {
		if a.Status == domain.AssignmentBroadcasted && a.OfferedTo(deliveryBoyID) {
			out = append(out, cloneAssignment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *AssignmentStore) GetActiveByDeliveryBoy(ctx context.Context, deliveryBoyID string) (*domain.DeliveryAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.data {
		if a.Status == domain.AssignmentAssigned && a.AssignedTo == deliveryBoyID {
			return cloneAssignment(a), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *AssignmentStore) ActiveDeliveryBoys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for _, a := range s.data {
		if a.Status == domain.AssignmentAssigned {
			ids = append(ids, a.AssignedTo)
		}
	}
	return ids, nil
}
