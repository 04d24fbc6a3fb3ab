// Package orderstate decides which (status, payment status) transitions an order may take.
//
// Every function is pure: it receives an order snapshot by value and returns the next
// snapshot together with the side effects the caller must apply atomically with it.
// Nothing here touches the store or the payment gateway.
package orderstate

import (
	"strings"

	"github.com/farmlink/orders-api/apperrors"
	"github.com/farmlink/orders-api/models"
)

// fulfillmentTransitions is the farmer-facing status table. Rejected and completed are terminal.
var fulfillmentTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:  {models.OrderStatusAccepted, models.OrderStatusRejected},
	models.OrderStatusAccepted: {models.OrderStatusCompleted},
}

// paymentTransitions is the payment status table. Paid is terminal; failed may be retried.
// A self-transition on processing is a refresh of the in-flight intent.
var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusUnset:      {models.PaymentStatusProcessing},
	models.PaymentStatusProcessing: {models.PaymentStatusProcessing, models.PaymentStatusPaid, models.PaymentStatusFailed},
	models.PaymentStatusFailed:     {models.PaymentStatusProcessing, models.PaymentStatusPaid},
}

// CanTransitionStatus reports whether the fulfillment table allows from -> to
func CanTransitionStatus(from, to models.OrderStatus) bool {
	for _, next := range fulfillmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether the payment table allows from -> to
func CanTransitionPayment(from, to models.PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Outcome is the result of applying a transition to an order snapshot
type Outcome struct {
	Order models.Order
	// Changed is false when the transition was a no-op (e.g. a replayed settlement)
	Changed bool
	// CountFarmer is true when the farmer's cumulative order counter must be
	// incremented together with this write. Order.FarmerCounted is already set.
	CountFarmer bool
	// Events lists the lifecycle changes produced, for notification
	Events []Event
}

// Event describes one axis of an order moving from one state to another
type Event struct {
	Axis string // "status" or "payment_status"
	From string
	To   string
}

const (
	AxisStatus        = "status"
	AxisPaymentStatus = "payment_status"
)

// RequestPaymentIntent checks that the consumer may start or refresh a payment attempt
func RequestPaymentIntent(o models.Order) error {
	if o.Status != models.OrderStatusPending {
		return apperrors.InvalidState("order is %s, payment can only be requested for pending orders", o.Status)
	}
	if o.PaymentStatus == models.PaymentStatusPaid {
		return apperrors.InvalidState("order is already paid")
	}
	return nil
}

// AttachPaymentIntent records the gateway intent for the current attempt and moves the
// payment to processing. Reusing the stored intent is a refresh; replacing it is only
// allowed while the previous attempt is not paid.
func AttachPaymentIntent(o models.Order, intentID string, attempt int) (Outcome, error) {
	if err := RequestPaymentIntent(o); err != nil {
		return Outcome{Order: o}, err
	}
	if intentID == "" {
		return Outcome{Order: o}, apperrors.Validation("payment intent id is required")
	}

	prev := o.PaymentStatus
	o.PaymentStatus = models.PaymentStatusProcessing
	o.PaymentIntentID = stringPtr(intentID)
	if attempt > o.PaymentAttempt {
		o.PaymentAttempt = attempt
	}

	out := Outcome{Order: o, Changed: true}
	if prev != models.PaymentStatusProcessing {
		out.Events = append(out.Events, Event{Axis: AxisPaymentStatus, From: string(prev), To: string(o.PaymentStatus)})
	}
	return out, nil
}

// SettlePaymentSucceeded applies a successful gateway outcome. Replaying the same
// settlement yields Changed=false. The farmer counter is only requested once per order,
// and a rejected order keeps its status and is flagged for manual review instead.
func SettlePaymentSucceeded(o models.Order, intentID, paymentID string) (Outcome, error) {
	if err := matchIntent(o, intentID); err != nil {
		return Outcome{Order: o}, err
	}
	if o.PaymentStatus == models.PaymentStatusPaid {
		return Outcome{Order: o}, nil
	}
	if !CanTransitionPayment(o.PaymentStatus, models.PaymentStatusPaid) {
		return Outcome{Order: o}, apperrors.InvalidState("payment cannot move from %s to paid", o.PaymentStatus)
	}

	out := Outcome{Changed: true}
	prevPayment := o.PaymentStatus
	o.PaymentStatus = models.PaymentStatusPaid
	if paymentID != "" {
		o.PaymentID = stringPtr(paymentID)
	}
	out.Events = append(out.Events, Event{Axis: AxisPaymentStatus, From: string(prevPayment), To: string(o.PaymentStatus)})

	switch o.Status {
	case models.OrderStatusPending:
		o.Status = models.OrderStatusAccepted
		out.Events = append(out.Events, Event{Axis: AxisStatus, From: string(models.OrderStatusPending), To: string(o.Status)})
		out.CountFarmer = markCounted(&o)
	case models.OrderStatusAccepted, models.OrderStatusCompleted:
		out.CountFarmer = markCounted(&o)
	case models.OrderStatusRejected:
		o.NeedsReview = true
	}

	out.Order = o
	return out, nil
}

// SettlePaymentFailed applies a failed gateway outcome. Status is never touched, and a
// failure arriving after the order was paid is stale and ignored.
func SettlePaymentFailed(o models.Order, intentID string) (Outcome, error) {
	if err := matchIntent(o, intentID); err != nil {
		return Outcome{Order: o}, err
	}
	if o.PaymentStatus == models.PaymentStatusFailed {
		return Outcome{Order: o}, nil
	}
	if !CanTransitionPayment(o.PaymentStatus, models.PaymentStatusFailed) {
		return Outcome{Order: o}, apperrors.InvalidState("payment cannot move from %s to failed", o.PaymentStatus)
	}

	prev := o.PaymentStatus
	o.PaymentStatus = models.PaymentStatusFailed
	return Outcome{
		Order:   o,
		Changed: true,
		Events:  []Event{{Axis: AxisPaymentStatus, From: string(prev), To: string(o.PaymentStatus)}},
	}, nil
}

// UpdateFulfillment applies a farmer's explicit status change.
//
// Completion requires the payment to be either paid or never started (offline payment);
// an in-flight or failed payment must be resolved first.
func UpdateFulfillment(o models.Order, callerFarmerID uint, to models.OrderStatus, rejectionReason string) (Outcome, error) {
	if o.FarmerID != callerFarmerID {
		return Outcome{Order: o}, apperrors.Forbidden("only the farmer who owns this order can update its status")
	}
	if !to.Valid() {
		return Outcome{Order: o}, apperrors.Validation("unknown order status %q", to)
	}
	if !CanTransitionStatus(o.Status, to) {
		return Outcome{Order: o}, apperrors.InvalidTransition("cannot move order from %s to %s", o.Status, to)
	}

	reason := strings.TrimSpace(rejectionReason)
	switch to {
	case models.OrderStatusRejected:
		if reason == "" {
			return Outcome{Order: o}, apperrors.Validation("rejection reason is required when rejecting an order")
		}
	case models.OrderStatusCompleted:
		if o.PaymentStatus != models.PaymentStatusPaid && o.PaymentStatus != models.PaymentStatusUnset {
			return Outcome{Order: o}, apperrors.InvalidTransition("cannot complete order while payment is %s", o.PaymentStatus)
		}
	}

	out := Outcome{Changed: true}
	from := o.Status
	o.Status = to
	if to == models.OrderStatusRejected {
		o.RejectionReason = stringPtr(reason)
	} else {
		o.RejectionReason = nil
	}
	if to == models.OrderStatusCompleted {
		out.CountFarmer = markCounted(&o)
	}
	out.Events = []Event{{Axis: AxisStatus, From: string(from), To: string(to)}}
	out.Order = o
	return out, nil
}

// MarkReviewed sets the write-once review flag for a completed order
func MarkReviewed(o models.Order, consumerID uint) (models.Order, error) {
	if o.ConsumerID != consumerID {
		return o, apperrors.Forbidden("only the consumer who placed this order can review it")
	}
	if o.Status != models.OrderStatusCompleted {
		return o, apperrors.InvalidState("only completed orders can be reviewed")
	}
	if o.HasReviewed {
		return o, apperrors.InvalidState("order has already been reviewed")
	}
	o.HasReviewed = true
	return o, nil
}

func matchIntent(o models.Order, intentID string) error {
	if o.PaymentIntentID == nil || *o.PaymentIntentID != intentID {
		return apperrors.InvalidState("payment intent %s does not match the order's current intent", intentID)
	}
	return nil
}

func markCounted(o *models.Order) bool {
	if o.FarmerCounted {
		return false
	}
	o.FarmerCounted = true
	return true
}

func stringPtr(s string) *string {
	return &s
}
