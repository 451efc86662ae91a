package reconcile

import (
	"fmt"
	"strings"
)

// formatAsText formats the plan as an ASCII tree.
func (pb *PlanBuilder) formatAsText(plan *PlanNode) string {
	var sb strings.Builder
	sb.WriteString("Batch Execution Plan (estimated costs)\n")
	pb.formatNodeAsText(plan, "", true, &sb)
	return sb.String()
}

// formatNodeAsText recursively formats a node and its children as text.
func (pb *PlanBuilder) formatNodeAsText(node *PlanNode, prefix string, isLast bool, sb *strings.Builder) {
	connector := "├─ "
	if isLast {
		connector = "└─ "
	}
	if prefix == "" {
		connector = ""
	}

	sb.WriteString(fmt.Sprintf("%s%s%s\n", prefix, connector, pb.formatNodeInfo(node)))

	childPrefix := prefix
	if prefix == "" {
		childPrefix = "  "
	} else if isLast {
		childPrefix += "   "
	} else {
		childPrefix += "│  "
	}

	for i, child := range node.Children {
		pb.formatNodeAsText(child, childPrefix, i == len(node.Children)-1, sb)
	}
}

// formatNodeInfo formats information for a single node.
func (pb *PlanBuilder) formatNodeInfo(node *PlanNode) string {
	parts := []string{string(node.Type)}
	if node.Label != "" {
		parts = append(parts, fmt.Sprintf(`"%s"`, node.Label))
	}

	var details []string
	if node.Model != "" && node.Type == BatchType {
		details = append(details, "model="+node.Model)
	}
	if node.Calls > 0 {
		if node.MaxCalls > node.Calls {
			details = append(details, fmt.Sprintf("calls=%d..%d", node.Calls, node.MaxCalls))
		} else {
			details = append(details, fmt.Sprintf("calls=%d", node.Calls))
		}
		details = append(details, fmt.Sprintf("cost=%.1f", node.EstCost))
	}
	if node.InputTokens > 0 || node.OutputTokens > 0 {
		details = append(details, fmt.Sprintf("tokens(in=%d,out=%d)", node.InputTokens, node.OutputTokens))
	}
	if node.ActCost != nil {
		details = append(details, fmt.Sprintf("$%.6f", *node.ActCost))
	}
	if skipped, ok := node.Metadata["skipped"]; ok {
		details = append(details, fmt.Sprintf("skipped: %v", skipped))
	}

	if len(details) > 0 {
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(details, ", ")))
	}
	return strings.Join(parts, " ")
}
