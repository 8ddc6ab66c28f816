package command

import (
	"strings"

	"github.com/erazemk/oprema/internal/model"
)

var statusSynonyms = map[string]model.Status{
	"available":      model.StatusAvailable,
	"free":           model.StatusAvailable,
	"returned":       model.StatusAvailable,
	"back":           model.StatusAvailable,
	"in stock":       model.StatusAvailable,
	"checked out":    model.StatusCheckedOut,
	"checked-out":    model.StatusCheckedOut,
	"checkedout":     model.StatusCheckedOut,
	"out":            model.StatusCheckedOut,
	"in use":         model.StatusCheckedOut,
	"borrowed":       model.StatusCheckedOut,
	"loaned":         model.StatusCheckedOut,
	"maintenance":    model.StatusMaintenance,
	"in maintenance": model.StatusMaintenance,
	"repair":         model.StatusMaintenance,
	"in repair":      model.StatusMaintenance,
	"under repair":   model.StatusMaintenance,
	"service":        model.StatusMaintenance,
	"servicing":      model.StatusMaintenance,
	"damaged":        model.StatusDamaged,
	"broken":         model.StatusDamaged,
	"faulty":         model.StatusDamaged,
	"busted":         model.StatusDamaged,
	"lost":           model.StatusLost,
	"missing":        model.StatusLost,
	"stolen":         model.StatusLost,
	"retired":        model.StatusRetired,
	"decommissioned": model.StatusRetired,
	"scrapped":       model.StatusRetired,
	"disposed":       model.StatusRetired,
	"reserved":       model.StatusReserved,
	"booked":         model.StatusReserved,
	"on hold":        model.StatusReserved,
	"overdue":        model.StatusOverdue,
	"late":           model.StatusOverdue,
}

// NormalizeStatus maps spoken status text to a Status through the synonym
// table. Text with no synonym is upper-cased and returned as is, so the
// result may not be a known status.
func NormalizeStatus(text string) model.Status {
	t := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if s, ok := statusSynonyms[t]; ok {
		return s
	}
	if s, ok := model.ParseStatus(t); ok {
		return s
	}
	return model.Status(strings.ToUpper(t))
}
