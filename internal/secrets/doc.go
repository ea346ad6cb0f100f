// Package secrets detects and redacts credentials in note text before it is
// sent to an AI provider.
//
// Two engines are available. The regex engine runs a curated rule set and is
// cheap enough to apply to every request. The gitleaks engine runs the full
// gitleaks default rule pack for broader coverage at higher cost. Findings
// carry rule IDs and positions but never the matched value.
package secrets
