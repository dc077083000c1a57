/*
assignments.go - The many-to-many account/coupon relation

PURPOSE:
  AssignmentIndex owns the relation between accounts and coupons. It
  references both sides by key only - it never owns a Coupon or an
  Account - which is why deleting a coupon must explicitly tell the index
  to drop dependents (RevokeAll); there is no implicit cascade via shared
  ownership.

INVARIANT:
  At most one assignment per (account, code) pair. A second Assign attempt
  returns ErrAlreadyAssigned without creating a duplicate row.

CASCADE:
  RevokeAll is keyed by coupon code and runs in O(assignees), not
  O(all accounts). It is idempotent: revoking a code with no assignments
  is a successful no-op.

SEE ALSO:
  - engine.go: DeleteCoupon pairs CouponStore.DeleteCoupon with RevokeAll
    inside one transaction boundary
*/
package ledger

import "context"

// =============================================================================
// ASSIGNMENT INDEX - Owns the (account, coupon) relation
// =============================================================================

type AssignmentIndex interface {
	// Assign links an account to a coupon and returns the assignment time.
	// The pair check and insert are atomic. Callers validate that account
	// and coupon exist before calling (see RedemptionEngine.Assign).
	Assign(ctx context.Context, account AccountRef, code string) (Assignment, error)

	// ListAssignments returns all assignments for an account, in assignment
	// order.
	ListAssignments(ctx context.Context, account AccountRef) ([]Assignment, error)

	// RevokeOne removes a single (account, code) pair, or returns
	// ErrNotAssigned if the pair does not exist.
	RevokeOne(ctx context.Context, account AccountRef, code string) error

	// RevokeAll removes every assignment referencing code, regardless of
	// account. Never fails on "not found".
	RevokeAll(ctx context.Context, code string) error
}

// ResolveAssignments maps an account's assignments to their coupons via the
// coupon store. Entries whose underlying coupon no longer exists are
// silently omitted: deletion should have cascaded, so this is a defensive
// filter, not normal-path behavior.
func ResolveAssignments(ctx context.Context, assignments AssignmentIndex, coupons CouponStore, account AccountRef) ([]Coupon, error) {
	links, err := assignments.ListAssignments(ctx, account)
	if err != nil {
		return nil, err
	}

	out := make([]Coupon, 0, len(links))
	for _, a := range links {
		c, err := coupons.GetCoupon(ctx, a.Code)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
