package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vingo-app/vingo-backend/internal/domain"
	"github.com/vingo-app/vingo-backend/internal/storage/memory"
)

// orderFixture is a customer ordering from two shops in Bengaluru
type orderFixture struct {
	services *Services
	store    *memory.Store
	emitter  *recordingEmitter

	customer *domain.User
	owner1   *domain.User
	owner2   *domain.User
	shop1    *domain.Shop
	shop2    *domain.Shop
	dosa     *domain.Item
	coffee   *domain.Item
	pizza    *domain.Item
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	services, store, emitter := newTestServices(t)
	ctx := context.Background()

	f := &orderFixture{services: services, store: store, emitter: emitter}
	f.customer = createUser(t, store, domain.RoleUser, point(t, 12.9716, 77.5946))
	f.owner1, f.shop1 = ownerWithShop(t, services, store, "Dosa Point", "Bengaluru")
	f.owner2, f.shop2 = ownerWithShop(t, services, store, "Pizza Hub", "Bengaluru")

	var err error
	f.dosa, err = services.Item.Add(ctx, f.owner1.ID, itemRequest("Masala Dosa", "South Indian", 80))
	require.NoError(t, err)
	f.coffee, err = services.Item.Add(ctx, f.owner1.ID, itemRequest("Filter Coffee", "Others", 30))
	require.NoError(t, err)
	f.pizza, err = services.Item.Add(ctx, f.owner2.ID, itemRequest("Margherita", "Pizza", 199.5))
	require.NoError(t, err)
	return f
}

func (f *orderFixture) request() *domain.PlaceOrderRequest {
	return &domain.PlaceOrderRequest{
		CartItems: []domain.CartItem{
			{ItemID: f.dosa.ID, ShopID: f.shop1.ID, Quantity: 2},
			{ItemID: f.pizza.ID, ShopID: f.shop2.ID, Quantity: 1},
			{ItemID: f.coffee.ID, ShopID: f.shop1.ID, Quantity: 1},
		},
		PaymentMethod: domain.PaymentCOD,
		DeliveryAddress: domain.DeliveryAddress{
			Text:      "12 Brigade Road",
			Latitude:  12.9716,
			Longitude: 77.5946,
		},
		TotalAmount: 389.5,
	}
}

func (f *orderFixture) place(t *testing.T) *domain.Order {
	t.Helper()
	order, err := f.services.Order.Place(context.Background(), f.customer.ID, f.request())
	require.NoError(t, err)
	return order
}

func TestOrderService_PlaceGroupsByShop(t *testing.T) {
	f := newOrderFixture(t)

	order := f.place(t)

	require.Len(t, order.ShopOrders, 2)
	assert.Equal(t, f.shop1.ID, order.ShopOrders[0].ShopID, "shops keep cart order")
	assert.Equal(t, f.owner1.ID, order.ShopOrders[0].OwnerID)
	assert.Len(t, order.ShopOrders[0].Items, 2)
	assert.InDelta(t, 190, order.ShopOrders[0].Subtotal, 0.001)
	assert.InDelta(t, 199.5, order.ShopOrders[1].Subtotal, 0.001)
	assert.InDelta(t, 389.5, order.TotalAmount, 0.001)
	for _, so := range order.ShopOrders {
		assert.Equal(t, domain.StatusPending, so.Status)
	}

	require.Len(t, f.emitter.to(f.owner1.ID, EventNewOrder), 1)
	require.Len(t, f.emitter.to(f.owner2.ID, EventNewOrder), 1)
	note := f.emitter.to(f.owner2.ID, EventNewOrder)[0].Payload.(OrderNotification)
	assert.Equal(t, f.shop2.ID, note.ShopOrder.ShopID)
	assert.Equal(t, f.customer.ID, note.Customer.ID)
}

func TestOrderService_PlaceUsesMenuPrices(t *testing.T) {
	f := newOrderFixture(t)

	req := f.request()
	req.CartItems[0].Price = 1
	req.TotalAmount = 0

	order, err := f.services.Order.Place(context.Background(), f.customer.ID, req)
	require.NoError(t, err)
	assert.InDelta(t, 389.5, order.TotalAmount, 0.001)
}

func TestOrderService_PlaceValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *orderFixture, r *domain.PlaceOrderRequest)
	}{
		{"empty cart", func(f *orderFixture, r *domain.PlaceOrderRequest) { r.CartItems = nil }},
		{"unknown payment", func(f *orderFixture, r *domain.PlaceOrderRequest) { r.PaymentMethod = "card" }},
		{"missing address", func(f *orderFixture, r *domain.PlaceOrderRequest) { r.DeliveryAddress.Text = "" }},
		{"bad coordinates", func(f *orderFixture, r *domain.PlaceOrderRequest) { r.DeliveryAddress.Latitude = 95 }},
		{"zero quantity", func(f *orderFixture, r *domain.PlaceOrderRequest) { r.CartItems[0].Quantity = 0 }},
		{"unknown item", func(f *orderFixture, r *domain.PlaceOrderRequest) { r.CartItems[0].ItemID = "missing" }},
		{"wrong shop", func(f *orderFixture, r *domain.PlaceOrderRequest) { r.CartItems[0].ShopID = f.shop2.ID }},
		{"total mismatch", func(f *orderFixture, r *domain.PlaceOrderRequest) { r.TotalAmount = 100 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrderFixture(t)
			req := f.request()
			tt.mutate(f, req)

			_, err := f.services.Order.Place(context.Background(), f.customer.ID, req)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Empty(t, f.emitter.to(f.owner1.ID, EventNewOrder))
		})
	}
}

func TestOrderService_ListMineByRole(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.place(t)

	mine, err := f.services.Order.ListMine(ctx, f.customer.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Len(t, mine[0].ShopOrders, 2)

	owned, err := f.services.Order.ListMine(ctx, f.owner2.ID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Len(t, owned[0].ShopOrders, 1, "owners only see their own shop order")
	assert.Equal(t, f.shop2.ID, owned[0].ShopOrders[0].ShopID)

	boy := createUser(t, f.store, domain.RoleDeliveryBoy, nil)
	none, err := f.services.Order.ListMine(ctx, boy.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOrderService_GetChecksParticipant(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.place(t)

	got, err := f.services.Order.Get(ctx, f.customer.ID, order.ID)
	require.NoError(t, err)
	assert.Len(t, got.ShopOrders, 2)

	got, err = f.services.Order.Get(ctx, f.owner1.ID, order.ID)
	require.NoError(t, err)
	assert.Len(t, got.ShopOrders, 1)

	stranger := createUser(t, f.store, domain.RoleUser, nil)
	_, err = f.services.Order.Get(ctx, stranger.ID, order.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.services.Order.Get(ctx, f.customer.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderService_UpdateStatus(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.place(t)

	_, err := f.services.Order.UpdateStatus(ctx, f.owner2.ID, order.ID, f.shop1.ID, domain.StatusPreparing)
	assert.ErrorIs(t, err, ErrForbidden)

	result, err := f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, domain.StatusPreparing)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPreparing, result.ShopOrder.Status)

	updates := f.emitter.to(f.customer.ID, EventUpdateStatus)
	require.Len(t, updates, 1)
	assert.Equal(t, domain.StatusPreparing, updates[0].Payload.(StatusNotification).Status)

	_, err = f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, domain.StatusPending)
	assert.ErrorIs(t, err, ErrConflict, "statuses never move backwards")

	_, err = f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, domain.StatusDelivered)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, "cancelled")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, "other-shop", domain.StatusPreparing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderService_OutOfDeliveryBroadcastsToNearbyFreeBoys(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.place(t)

	near := createUser(t, f.store, domain.RoleDeliveryBoy, point(t, 12.9750, 77.5990))
	busy := createUser(t, f.store, domain.RoleDeliveryBoy, point(t, 12.9720, 77.5950))
	far := createUser(t, f.store, domain.RoleDeliveryBoy, point(t, 13.2000, 77.7000))
	createUser(t, f.store, domain.RoleDeliveryBoy, nil)

	// busy already carries another order
	other := &domain.DeliveryAssignment{
		ID:            domain.NewID(),
		OrderID:       "elsewhere",
		ShopID:        "elsewhere",
		BroadcastedTo: []string{busy.ID},
		Status:        domain.AssignmentBroadcasted,
	}
	require.NoError(t, f.store.Assignments().Create(ctx, other))
	_, err := f.store.Assignments().Claim(ctx, other.ID, busy.ID)
	require.NoError(t, err)

	result, err := f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, domain.StatusOutOfDelivery)
	require.NoError(t, err)
	require.NotEmpty(t, result.AssignmentID)
	require.Len(t, result.AvailableBoys, 1)
	assert.Equal(t, near.ID, result.AvailableBoys[0].ID)

	offers := f.emitter.to(near.ID, EventNewAssignment)
	require.Len(t, offers, 1)
	offer := offers[0].Payload.(AssignmentOffer)
	assert.Equal(t, result.AssignmentID, offer.AssignmentID)
	assert.Equal(t, "Dosa Point", offer.ShopName)
	assert.Empty(t, f.emitter.to(busy.ID, EventNewAssignment))
	assert.Empty(t, f.emitter.to(far.ID, EventNewAssignment))

	pending, err := f.services.Order.GetAssignments(ctx, near.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, order.ID, pending[0].OrderID)
}

func TestOrderService_OutOfDeliveryWithNobodyAround(t *testing.T) {
	f := newOrderFixture(t)
	order := f.place(t)

	result, err := f.services.Order.UpdateStatus(context.Background(), f.owner1.ID, order.ID, f.shop1.ID, domain.StatusOutOfDelivery)
	require.NoError(t, err)
	assert.Empty(t, result.AssignmentID)
	assert.Empty(t, result.AvailableBoys)
	assert.Equal(t, domain.StatusOutOfDelivery, result.ShopOrder.Status)
}

func TestOrderService_DeliveryFlow(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.place(t)

	boy := createUser(t, f.store, domain.RoleDeliveryBoy, point(t, 12.9750, 77.5990))
	result, err := f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, domain.StatusOutOfDelivery)
	require.NoError(t, err)

	_, err = f.services.Order.MarkDelivered(ctx, boy.ID, order.ID, f.shop1.ID)
	assert.ErrorIs(t, err, ErrForbidden, "not yet accepted")

	assignment, err := f.services.Order.AcceptAssignment(ctx, boy.ID, result.AssignmentID)
	require.NoError(t, err)
	assert.Equal(t, domain.AssignmentAssigned, assignment.Status)

	current, err := f.services.Order.CurrentOrder(ctx, boy.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, current.OrderID)
	assert.Equal(t, f.customer.ID, current.Customer.ID)
	assert.Equal(t, boy.ID, current.ShopOrder.AssignedDeliveryBoy)

	// the location reaches the customer while the order is on the way
	require.NoError(t, f.services.User.UpdateLocation(ctx, boy.ID, 12.9730, 77.5960))
	locations := f.emitter.to(f.customer.ID, EventUpdateDeliveryLocation)
	require.Len(t, locations, 1)
	assert.Equal(t, order.ID, locations[0].Payload.(DeliveryLocation).OrderID)

	delivered, err := f.services.Order.MarkDelivered(ctx, boy.ID, order.ID, f.shop1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, delivered.Status)
	assert.NotNil(t, delivered.DeliveredAt)

	_, err = f.services.Order.CurrentOrder(ctx, boy.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.services.Order.MarkDelivered(ctx, boy.ID, order.ID, f.shop1.ID)
	assert.ErrorIs(t, err, ErrConflict)

	listed, err := f.services.Order.ListMine(ctx, boy.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Len(t, listed[0].ShopOrders, 1)
}

func TestOrderService_AcceptAssignmentFirstWins(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.place(t)

	boys := make([]*domain.User, 5)
	for i := range boys {
		boys[i] = createUser(t, f.store, domain.RoleDeliveryBoy, point(t, 12.9720, 77.5950))
	}

	result, err := f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, domain.StatusOutOfDelivery)
	require.NoError(t, err)
	require.Len(t, result.AvailableBoys, len(boys))

	var wg sync.WaitGroup
	errs := make([]error, len(boys))
	for i, boy := range boys {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.services.Order.AcceptAssignment(ctx, id, result.AssignmentID)
		}(i, boy.ID)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrConflict)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestOrderService_AcceptAssignmentRules(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	boy := createUser(t, f.store, domain.RoleDeliveryBoy, point(t, 12.9720, 77.5950))

	first := f.place(t)
	second := f.place(t)
	r1, err := f.services.Order.UpdateStatus(ctx, f.owner1.ID, first.ID, f.shop1.ID, domain.StatusOutOfDelivery)
	require.NoError(t, err)
	r2, err := f.services.Order.UpdateStatus(ctx, f.owner1.ID, second.ID, f.shop1.ID, domain.StatusOutOfDelivery)
	require.NoError(t, err)

	_, err = f.services.Order.AcceptAssignment(ctx, f.customer.ID, r1.AssignmentID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.services.Order.AcceptAssignment(ctx, boy.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.services.Order.AcceptAssignment(ctx, boy.ID, r1.AssignmentID)
	require.NoError(t, err)

	_, err = f.services.Order.AcceptAssignment(ctx, boy.ID, r2.AssignmentID)
	assert.ErrorIs(t, err, ErrConflict, "one delivery at a time")
}

func TestOrderService_OutOfDeliveryRepeatsOfferWhileUnassigned(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.place(t)

	first, err := f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, domain.StatusOutOfDelivery)
	require.NoError(t, err)
	require.Empty(t, first.AssignmentID)

	// repeating with still nobody around is accepted and changes nothing
	again, err := f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, domain.StatusOutOfDelivery)
	require.NoError(t, err)
	assert.Empty(t, again.AssignmentID)
	assert.Len(t, f.emitter.to(f.customer.ID, EventUpdateStatus), 1, "customer hears about the status once")

	boy := createUser(t, f.store, domain.RoleDeliveryBoy, point(t, 12.9750, 77.5990))
	retry, err := f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, domain.StatusOutOfDelivery)
	require.NoError(t, err)
	require.NotEmpty(t, retry.AssignmentID)
	require.Len(t, retry.AvailableBoys, 1)
	require.Len(t, f.emitter.to(boy.ID, EventNewAssignment), 1)

	stored, err := f.store.Orders().GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, retry.AssignmentID, stored.ShopOrder(f.shop1.ID).AssignmentID)

	// once offered the shop order can no longer be offered again
	_, err = f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, domain.StatusOutOfDelivery)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.services.Order.AcceptAssignment(ctx, boy.ID, retry.AssignmentID)
	require.NoError(t, err)
	_, err = f.services.Order.MarkDelivered(ctx, boy.ID, order.ID, f.shop1.ID)
	require.NoError(t, err)
}

func TestOrderService_ConcurrentRepeatedOfferCreatesOneAssignment(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.place(t)

	_, err := f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, domain.StatusOutOfDelivery)
	require.NoError(t, err)
	boy := createUser(t, f.store, domain.RoleDeliveryBoy, point(t, 12.9750, 77.5990))

	const attempts = 8
	var wg sync.WaitGroup
	ids := make([]string, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, domain.StatusOutOfDelivery)
			if err == nil {
				ids[i] = r.AssignmentID
			} else {
				assert.ErrorIs(t, err, ErrConflict)
			}
		}(i)
	}
	wg.Wait()

	var created []string
	for _, id := range ids {
		if id != "" {
			created = append(created, id)
		}
	}
	assert.Len(t, created, 1)

	pending, err := f.services.Order.GetAssignments(ctx, boy.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestOrderService_OfflineDeliveryBoysAreNotOffered(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.place(t)

	online := createUser(t, f.store, domain.RoleDeliveryBoy, point(t, 12.9750, 77.5990))
	offline := createUser(t, f.store, domain.RoleDeliveryBoy, point(t, 12.9720, 77.5950))
	f.emitter.setOffline(offline.ID)

	result, err := f.services.Order.UpdateStatus(ctx, f.owner1.ID, order.ID, f.shop1.ID, domain.StatusOutOfDelivery)
	require.NoError(t, err)
	require.Len(t, result.AvailableBoys, 1)
	assert.Equal(t, online.ID, result.AvailableBoys[0].ID)
	assert.Empty(t, f.emitter.to(offline.ID, EventNewAssignment))

	_, err = f.services.Order.AcceptAssignment(ctx, offline.ID, result.AssignmentID)
	assert.ErrorIs(t, err, ErrConflict, "only offered delivery boys may accept")
}

func TestOrderService_ConcurrentOwnersKeepBothUpdates(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.place(t)

	steps := []domain.OrderStatus{domain.StatusPreparing, domain.StatusOutOfDelivery}
	var wg sync.WaitGroup
	for _, owner := range []struct {
		id   string
		shop string
	}{{f.owner1.ID, f.shop1.ID}, {f.owner2.ID, f.shop2.ID}} {
		wg.Add(1)
		go func(ownerID, shopID string) {
			defer wg.Done()
			for _, status := range steps {
				_, err := f.services.Order.UpdateStatus(ctx, ownerID, order.ID, shopID, status)
				assert.NoError(t, err)
			}
		}(owner.id, owner.shop)
	}
	wg.Wait()

	stored, err := f.store.Orders().GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOutOfDelivery, stored.ShopOrder(f.shop1.ID).Status)
	assert.Equal(t, domain.StatusOutOfDelivery, stored.ShopOrder(f.shop2.ID).Status)
}

func TestOrderService_OneBoyAcceptsTwoOffersConcurrently(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	boy := createUser(t, f.store, domain.RoleDeliveryBoy, point(t, 12.9720, 77.5950))
	first := f.place(t)
	second := f.place(t)
	r1, err := f.services.Order.UpdateStatus(ctx, f.owner1.ID, first.ID, f.shop1.ID, domain.StatusOutOfDelivery)
	require.NoError(t, err)
	r2, err := f.services.Order.UpdateStatus(ctx, f.owner2.ID, second.ID, f.shop2.ID, domain.StatusOutOfDelivery)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{r1.AssignmentID, r2.AssignmentID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.services.Order.AcceptAssignment(ctx, boy.ID, id)
		}(i, id)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrConflict)
		}
	}
	assert.Equal(t, 1, winners)

	busy, err := f.store.Assignments().ActiveDeliveryBoys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{boy.ID}, busy)
}
