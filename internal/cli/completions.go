package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// completeSessionInfo lists SessionInfo paths under the logs root. With
// incompleteOnly only interrupted sessions are offered.
func completeSessionInfo(incompleteOnly bool) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 || LogsRoot == "" {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		res, err := scanner().Scan(LogsRoot)
		if err != nil {
			return nil, cobra.ShellCompDirectiveDefault
		}

		var paths []string
		for _, rec := range res.Records {
			if incompleteOnly && rec.Status != models.SessionIncomplete {
				continue
			}
			path := rec.Paths.SessionInfoPath
			if !strings.HasPrefix(path, toComplete) {
				continue
			}
			desc := string(rec.Status)
			if rec.Info != nil {
				desc += " " + rec.Info.ParticipantID
			}
			paths = append(paths, path+"\t"+desc)
		}
		return paths, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeParticipants lists participant IDs seen in the logs root.
func completeParticipants(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if LogsRoot == "" {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	res, err := scanner().Scan(LogsRoot)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	seen := map[string]bool{}
	var ids []string
	for _, rec := range res.Records {
		if rec.Info == nil {
			continue
		}
		id := rec.Info.ParticipantID
		if id == "" || seen[id] || !strings.HasPrefix(id, toComplete) {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

// completeScreens lists the workflow screens.
func completeScreens(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	screens := make([]string, 0, len(models.Workflow))
	for _, s := range models.Workflow {
		entry := string(s)
		if s.HasCountdown() {
			entry += "\thas countdown"
		}
		screens = append(screens, entry)
	}
	return screens, cobra.ShellCompDirectiveNoFileComp
}

func completeInspectFormats(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		"text\tHuman readable summary",
		"json\tRecovery state and digest as JSON",
		"yaml\tRecovery state and digest as YAML",
	}, cobra.ShellCompDirectiveNoFileComp
}
