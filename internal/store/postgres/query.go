package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/coinwatch/internal/domain"
)

const defaultPageSize = 100

// pagedQuery appends the time window, newest-first ordering and paging of
// opts to base. base may already reference $1..$len(args); timeCol is the
// column the window and ordering apply to.
func pagedQuery(base string, args []any, timeCol string, opts domain.ListOpts) (string, []any) {
	var b strings.Builder
	b.WriteString(base)

	where := " WHERE "
	if strings.Contains(strings.ToUpper(base), " WHERE ") {
		where = " AND "
	}
	arg := func(v any) int {
		args = append(args, v)
		return len(args)
	}

	if opts.Since != nil {
		fmt.Fprintf(&b, "%s%s >= $%d", where, timeCol, arg(*opts.Since))
		where = " AND "
	}
	if opts.Until != nil {
		fmt.Fprintf(&b, "%s%s <= $%d", where, timeCol, arg(*opts.Until))
	}

	fmt.Fprintf(&b, " ORDER BY %s DESC, id DESC", timeCol)

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	fmt.Fprintf(&b, " LIMIT $%d", arg(limit))
	if opts.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET $%d", arg(opts.Offset))
	}
	return b.String(), args
}
