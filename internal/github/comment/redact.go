package comment

import "regexp"

// Captured tool output ends up verbatim in a public PR comment, so
// credential-shaped strings are censored before rendering. The patterns
// cover the token formats the pipeline itself handles: GitHub tokens
// passed to gh, Vault tokens, and AWS access key ids.
var (
	reGitHubPATClassic   = regexp.MustCompile(`\bghp_[A-Za-z0-9]{36}\b`)
	reGitHubInstallation = regexp.MustCompile(`\bghs_[A-Za-z0-9]{36}\b`)
	reGitHubFineGrained  = regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{11,221}\b`)
	reVaultToken         = regexp.MustCompile(`\b(?:hvs|hvb|s)\.[A-Za-z0-9]{24,}\b`)
	reAWSAccessKey       = regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`)
)

// RedactSecrets censors credential-shaped substrings in captured output.
func RedactSecrets(s string) string {
	s = reGitHubPATClassic.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = reGitHubInstallation.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = reGitHubFineGrained.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = reVaultToken.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = reAWSAccessKey.ReplaceAllString(s, "[REDACTED_KEY]")
	return s
}
