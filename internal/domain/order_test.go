package domain

import "testing"

func TestToOrderStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    OrderStatus
		wantErr bool
	}{
		{"pending_payment", OrderStatusPendingPayment, false},
		{"pending", OrderStatusPending, false},
		{"processing", OrderStatusProcessing, false},
		{"shipped", OrderStatusShipped, false},
		{"delivered", OrderStatusDelivered, false},
		{"cancelled", OrderStatusCancelled, false},
		{"return_processing", OrderStatusReturnProcessing, false},
		{"returned", OrderStatusReturned, false},
		{"canceled", "", true},
		{"SHIPPED", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ToOrderStatus(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ToOrderStatus(%q) expected error", tt.input)
				}
				if ErrorCode(err) != EINVALID {
					t.Errorf("code = %q, want %q", ErrorCode(err), EINVALID)
				}
				return
			}
			if err != nil {
				t.Fatalf("ToOrderStatus(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ToOrderStatus(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to OrderStatus }{
		{OrderStatusPendingPayment, OrderStatusProcessing},
		{OrderStatusPendingPayment, OrderStatusCancelled},
		{OrderStatusPending, OrderStatusShipped},
		{OrderStatusPending, OrderStatusCancelled},
		{OrderStatusProcessing, OrderStatusShipped},
		{OrderStatusShipped, OrderStatusDelivered},
		{OrderStatusShipped, OrderStatusCancelled},
		{OrderStatusDelivered, OrderStatusReturnProcessing},
		{OrderStatusReturnProcessing, OrderStatusReturned},
		// re-entering the same status is always legal
		{OrderStatusShipped, OrderStatusShipped},
		{OrderStatusDelivered, OrderStatusDelivered},
	}
	for _, tt := range allowed {
		if !CanTransition(tt.from, tt.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tt.from, tt.to)
		}
	}

	denied := []struct{ from, to OrderStatus }{
		{OrderStatusDelivered, OrderStatusCancelled},
		{OrderStatusDelivered, OrderStatusShipped},
		{OrderStatusCancelled, OrderStatusProcessing},
		{OrderStatusReturned, OrderStatusDelivered},
		{OrderStatusShipped, OrderStatusProcessing},
		{OrderStatusPendingPayment, OrderStatusShipped},
	}
	for _, tt := range denied {
		if CanTransition(tt.from, tt.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", tt.from, tt.to)
		}
	}
}

func TestOrderIsGuest(t *testing.T) {
	o := &Order{GuestEmail: "guest@example.com"}
	if !o.IsGuest() {
		t.Error("order without customer id should be guest")
	}
}
