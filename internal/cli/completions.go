package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/edwh/otk/internal/core"
	"github.com/edwh/otk/internal/observability"
	"github.com/edwh/otk/pkg/models"
)

// maxRecentCompletions caps the IDs offered from the event log.
const maxRecentCompletions = 20

// completeRecentRoots returns a completion function that lists the root IDs
// of recently built hierarchies of the given type, newest first. It reads the
// local event log only, so completing never contacts the server.
func completeRecentRoots(typ models.HierarchyType) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if EventLog == nil || len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		events, err := EventLog.Read(observability.EventFilter{Type: core.EventHierarchyBuilt})
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		seen := make(map[int64]bool)
		var ids []string
		for i := len(events) - 1; i >= 0 && len(ids) < maxRecentCompletions; i-- {
			e := events[i]
			if cast.ToString(e.Data["type"]) != string(typ) {
				continue
			}
			id := cast.ToInt64(e.Data["root_id"])
			if id <= 0 || seen[id] {
				continue
			}
			seen[id] = true
			s := strconv.FormatInt(id, 10)
			if toComplete == "" || strings.HasPrefix(s, toComplete) {
				ids = append(ids, fmt.Sprintf("%s\t%d nodes, %s", s, cast.ToInt(e.Data["nodes"]), e.Time.Format("2006-01-02 15:04")))
			}
		}

		return ids, cobra.ShellCompDirectiveNoFileComp
	}
}

// completePriorities returns a completion function for priority levels.
func completePriorities(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	levels := make([]string, 0, models.PriorityCritical+1)
	for l := models.PriorityNormal; l <= models.PriorityCritical; l++ {
		p := models.PriorityFor(l)
		levels = append(levels, fmt.Sprintf("%d\t%s %s", p.Level, p.Name, p.Stars))
	}
	return levels, cobra.ShellCompDirectiveNoFileComp
}

// completeProtocols returns a completion function for odoo.protocol values.
func completeProtocols(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		core.ProtocolXMLRPCS + "\tXML-RPC over HTTPS",
		core.ProtocolXMLRPC + "\tXML-RPC over plain HTTP",
	}, cobra.ShellCompDirectiveNoFileComp
}
