package planner

import (
	"sort"
	"strings"
)

// dailyTemplates is the fixed rotation for daily status posts. Selection is
// (dayIndex + channelOffset) mod len.
var dailyTemplates = []string{
	"Dragon online. Deterministic automation, evidence-first. No hype, just disciplined execution and receipts.",
	"Another day of boring, auditable automation. Every action logged, every decision reconstructable.",
	"Dragon status: operational. Policy gates green, ledger appending, queue draining in order.",
	"Shipping quietly. Deterministic plans, hard content gates, receipts for everything we send.",
	"Dragon here. We don't improvise: explicit inputs, defined actions, auditable outputs.",
}

// intentKeywords maps each topic label to the keyword set scanned against
// lower-cased mention text. The winning label is the one with the most hits;
// ties break by lexicographic label order.
var intentKeywords = map[string][]string{
	"agents": {"agent", "autonomous", "llm", "bot", "automation"},
	"construction": {"construction", "contractor", "jobsite", "permit", "build"},
	"dev":      {"code", "deploy", "api", "bug", "refactor"},
	"ops":      {"ops", "incident", "monitoring", "uptime", "alert"},
	"security": {"security", "breach", "vulnerability", "audit", "exploit"},
	"trading":  {"trading", "market", "portfolio", "signal", "backtest"},
}

// replyTemplates maps intent labels to the reactive reply sent to mentions.
var replyTemplates = map[string]string{
	"agents":       "Appreciate the ping. Dragon runs on explicit mandates: deterministic planning, policy gates, full audit trail. What are your agents allowed to do on their own?",
	"construction": "Good question. We treat field automation like any other system: defined inputs, defined actions, receipts for everything. What part of the job are you trying to automate?",
	"dev":          "Thanks for the mention. We keep the stack boring on purpose: small state machines, idempotent queues, logs you can replay. What are you building?",
	"general":      "Appreciate the ping. Dragon here: deterministic, evidence-only automation. What are you working on?",
	"ops":          "Seen. Our rule for ops: every action leaves a receipt, every failure retries from the queue, nothing silent. How do you handle your audit trail?",
	"security":     "Fair point to raise. Dragon fails closed on policy and keeps an append-only ledger, so rejected actions are just as visible as sent ones. Happy to compare notes.",
	"trading":      "We stay out of predictions. Dragon only automates what can be verified and logged, markets included. What signals are you working from?",
}

// initiationTemplates are the softer variants used when we start a
// conversation from topic search rather than answering a mention.
var initiationTemplates = map[string]string{
	"agents":       "Enjoyed this take. We build agents the boring way: explicit mandates and an audit trail for every action. Curious how you think about autonomy limits.",
	"construction": "Interesting thread. We've been applying deterministic automation to field workflows, receipts over promises. Would love to hear how you approach it.",
	"dev":          "Good thread. We lean on idempotent queues and replayable logs for this kind of thing. Curious what your setup looks like.",
	"general":      "Interesting point. We work on deterministic, auditable automation over at Dragon. Curious to hear more about your approach.",
	"ops":          "This resonates. We log every automated action to an append-only ledger for exactly this reason. How are you handling visibility?",
	"security":     "Solid observation. Fail-closed policy gates have saved us more than once. Curious what your threat model looks like for automated posting.",
	"trading":      "Sensible framing. We keep automation strictly to the verifiable side of markets. Interested in how you validate your signals.",
}

// ClassifyIntent scans lower-cased text against the keyword sets and returns
// the winning label, or "general" when nothing matches.
func ClassifyIntent(text string) string {
	lowered := strings.ToLower(text)

	labels := make([]string, 0, len(intentKeywords))
	for label := range intentKeywords {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best := "general"
	bestHits := 0
	for _, label := range labels {
		hits := 0
		for _, kw := range intentKeywords[label] {
			if strings.Contains(lowered, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = label
			bestHits = hits
		}
	}
	return best
}

func replyTemplate(label string) string {
	if t, ok := replyTemplates[label]; ok {
		return t
	}
	return replyTemplates["general"]
}

func initiationTemplate(label string) string {
	if t, ok := initiationTemplates[label]; ok {
		return t
	}
	return initiationTemplates["general"]
}
