package digest

import (
	"fmt"
	"strings"
)

// Render formats a digest as a chat-markdown message.
func Render(d *Digest) string {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("📊 **%s WEEKLY EXECUTIVE DIGEST**", strings.ToUpper(d.Account))
	add("*Week of %s*", d.GeneratedAt.Format("January 02, 2006"))
	add("")

	add("**Account Snapshot:** %s | %s", d.Snapshot.Status, d.Snapshot.Momentum)
	add("%s", d.Snapshot.Summary)
	add("")

	add("**What Changed:**")
	if len(d.WhatChanged) == 0 {
		add("• No material changes this week")
	}
	for _, c := range d.WhatChanged {
		add("• %s", c)
	}
	add("")

	add("**Key Risks:**")
	if len(d.Risks) == 0 {
		add("• No material risks identified this week")
	}
	for i, r := range d.Risks {
		add("%d. %s", i+1, r.Description)
		add("   ↳ %s", r.WhyItMatters)
	}
	add("")

	if len(d.Opportunities) > 0 {
		add("**Opportunities:**")
		for _, o := range d.Opportunities {
			add("• %s - %s", o.Description, o.Rationale)
		}
		add("")
	}

	add("**Actions Needed:**")
	if len(d.Actions) == 0 {
		add("• No exec action required this week")
	}
	for _, a := range d.Actions {
		add("• %s (%s, by %s)", a.Action, a.Owner, a.Due)
	}
	add("")

	add("**External Signals:**")
	add("%s", d.ExternalSignals)

	return strings.Join(lines, "\n")
}
