// Package moderation holds the pure gate checks every inbound message passes
// before any work is scheduled.
package moderation

// BanChecker is the slice of the store the policy needs.
type BanChecker interface {
	IsBanned(id int64) bool
	MaintenanceMode() bool
}

// Policy evaluates sender identity against the ban set, the maintenance
// flag, and the static admin set configured at startup. It holds no mutable
// state of its own.
type Policy struct {
	store  BanChecker
	admins map[int64]struct{}
}

func NewPolicy(store BanChecker, adminIDs []int64) *Policy {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Policy{store: store, admins: admins}
}

func (p *Policy) IsAdmin(id int64) bool {
	_, ok := p.admins[id]
	return ok
}

func (p *Policy) IsBanned(id int64) bool {
	return p.store.IsBanned(id)
}

// UnderMaintenance is true only for non-admin senders while the maintenance
// flag is set; admins bypass it.
func (p *Policy) UnderMaintenance(id int64) bool {
	if p.IsAdmin(id) {
		return false
	}
	return p.store.MaintenanceMode()
}

// Verdict classifies one inbound message.
type Verdict int

const (
	VerdictAccept Verdict = iota
	// VerdictDrop: banned sender, no reply at all.
	VerdictDrop
	// VerdictMaintenanceNotice: blocked, but the sender gets the fixed notice.
	VerdictMaintenanceNotice
)

func (p *Policy) Check(id int64) Verdict {
	if p.IsBanned(id) {
		return VerdictDrop
	}
	if p.UnderMaintenance(id) {
		return VerdictMaintenanceNotice
	}
	return VerdictAccept
}
