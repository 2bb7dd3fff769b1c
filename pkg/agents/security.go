package agents

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/flowsmith/flowsmith/pkg/models"
)

// secretPatterns match credential material embedded in generated code.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password)\s*[:=]\s*["'][^"']{8,}["']`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`-----BEGIN (RSA |EC )?PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)bearer\s+[a-z0-9._-]{20,}`),
}

// vulnerablePatterns flag code constructs that are unsafe in generated
// integration code.
var vulnerablePatterns = map[string]*regexp.Regexp{
	"eval of dynamic input":         regexp.MustCompile(`(?i)\beval\s*\(`),
	"shell command construction":    regexp.MustCompile(`(?i)(exec|system|popen)\s*\(`),
	"SQL string concatenation":      regexp.MustCompile(`(?i)(select|insert|update|delete)[^;]*['"]\s*\+`),
	"insecure HTTP endpoint":        regexp.MustCompile(`http://[a-z0-9]`),
	"HTML injection via innerHTML":  regexp.MustCompile(`(?i)\.innerHTML\s*=`),
	"disabled certificate checking": regexp.MustCompile(`(?i)(verify\s*=\s*false|InsecureSkipVerify\s*:\s*true)`),
}

// packageDenylist lists dependencies disallowed in generated applications.
var packageDenylist = map[string]string{
	"request": "deprecated and unmaintained",
	"event-stream": "known supply chain incident",
}

// SecurityAgent scans generated workflow code for vulnerabilities, embedded
// secrets and compliance issues.
type SecurityAgent struct {
	baseAgent
}

func NewSecurityAgent(logger *slog.Logger) *SecurityAgent {
	a := &SecurityAgent{baseAgent: newBaseAgent(models.RoleSecurity, logger)}

	a.register("scan_code", a.scanCode)
	a.register("detect_secrets", a.detectSecrets)
	a.register("check_compliance", a.checkCompliance)

	return a
}

func (a *SecurityAgent) scanCode(_ context.Context, params map[string]any, _ models.AgentContext) (*models.AgentResult, error) {
	code, _ := params["code"].(string)
	if code == "" {
		return nil, errors.New("code is required for scanning")
	}

	packages := stringSlice(params["packages"])
	report := ScanCode(code, packages)

	warnings := make([]string, 0, len(report.Vulnerabilities))
	warnings = append(warnings, report.Vulnerabilities...)
	warnings = append(warnings, report.Secrets...)
	warnings = append(warnings, report.ComplianceIssues...)

	return &models.AgentResult{
		Success: true,
		Data: map[string]any{
			"score":             report.Score,
			"vulnerabilities":   report.Vulnerabilities,
			"compliance_issues": report.ComplianceIssues,
			"secrets":           report.Secrets,
		},
		Warnings:    warnings,
		Suggestions: report.Recommendations,
		Confidence:  0.85,
	}, nil
}

func (a *SecurityAgent) detectSecrets(_ context.Context, params map[string]any, _ models.AgentContext) (*models.AgentResult, error) {
	code, _ := params["code"].(string)
	if code == "" {
		return nil, errors.New("code is required for secret detection")
	}

	secrets := findSecrets(code)

	return &models.AgentResult{
		Success:  true,
		Data:     map[string]any{"secrets": secrets},
		Warnings: secrets,
	}, nil
}

func (a *SecurityAgent) checkCompliance(_ context.Context, params map[string]any, _ models.AgentContext) (*models.AgentResult, error) {
	packages := stringSlice(params["packages"])
	issues := findComplianceIssues(packages)

	return &models.AgentResult{
		Success:  true,
		Data:     map[string]any{"compliance_issues": issues},
		Warnings: issues,
	}, nil
}

// ScanCode runs the full security scan and produces a scored report. The
// score starts at 100 and loses points per finding class.
func ScanCode(code string, packages []string) *models.SecurityScanReport {
	report := &models.SecurityScanReport{Score: 100}

	for label, pattern := range vulnerablePatterns {
		if pattern.MatchString(code) {
			report.Vulnerabilities = append(report.Vulnerabilities, label)
		}
	}

	report.Secrets = findSecrets(code)
	report.ComplianceIssues = findComplianceIssues(packages)

	report.Score -= 15 * len(report.Vulnerabilities)
	report.Score -= 25 * len(report.Secrets)
	report.Score -= 10 * len(report.ComplianceIssues)

	if report.Score < 0 {
		report.Score = 0
	}

	if len(report.Secrets) > 0 {
		report.Recommendations = append(report.Recommendations, "Move credentials into environment configuration")
	}

	if len(report.Vulnerabilities) > 0 {
		report.Recommendations = append(report.Recommendations, "Replace flagged constructs with parameterized or sanitized equivalents")
	}

	return report
}

func findSecrets(code string) []string {
	secrets := make([]string, 0)

	for _, pattern := range secretPatterns {
		for _, match := range pattern.FindAllString(code, -1) {
			secrets = append(secrets, "possible embedded secret: "+truncateMatch(match))
		}
	}

	return secrets
}

func findComplianceIssues(packages []string) []string {
	issues := make([]string, 0)

	for _, pkg := range packages {
		if reason, ok := packageDenylist[strings.ToLower(pkg)]; ok {
			issues = append(issues, "package '"+pkg+"' is disallowed: "+reason)
		}
	}

	return issues
}

func truncateMatch(match string) string {
	if len(match) > 40 {
		return match[:40] + "..."
	}

	return match
}

func stringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))

		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}
