package risk

// DefaultBase is the static per-tool table. Tools missing from it fall back
// to the level they declared at registration, then to Sensitive.
var DefaultBase = map[string]Level{
	// inspection
	"read_file":        Safe,
	"list_dir":         Safe,
	"search_files":     Safe,
	"system_stats":     Safe,
	"web_fetch":        Safe,
	"browser_snapshot": Safe,
	"doc_read":         Safe,

	// mutating or launching
	"write_file":       Sensitive,
	"edit_file":        Sensitive,
	"run_shell":        Sensitive,
	"launch_app":       Sensitive,
	"type_text":        Sensitive,
	"browser_click":    Sensitive,
	"browser_navigate": Sensitive,
	"doc_write":        Sensitive,

	// irreversible
	"fs_delete":    Dangerous,
	"kill_process": Dangerous,
}

// systemPath matches a "path" argument pointing at the filesystem root, the
// home directory itself, or a system configuration tree.
const systemPath = `"path"\s*:\s*"(/|~|~/|/etc(/[^"]*)?|/boot(/[^"]*)?|/usr(/[^"]*)?|/bin(/[^"]*)?|/sbin(/[^"]*)?|/lib(/[^"]*)?|/var/lib(/[^"]*)?|/System(/[^"]*)?|[A-Za-z]:\\\\(Windows(\\\\[^"]*)?)?)"`

// DefaultPatterns are matched against the JSON-serialized arguments of a call.
// A match forces Dangerous.
var DefaultPatterns = map[string][]string{
	"run_shell": {
		`\brm\s+(-\S+\s+)*(-[a-zA-Z]*[rR][a-zA-Z]*|--recursive)\b[^|;&]*\s(/|~|\*|\$HOME)`,
		`\bsudo\b`,
		`\bsu(\s|$)`,
		`\bmkfs`,
		`\bdd\s+if=`,
		`:\(\)\s*\{`,
		`chmod\s+-R\s+777`,
		`chown\s+-R`,
		`(curl|wget)[^|]*\|\s*(ba|z)?sh`,
		`>\s*/dev/sd`,
		`\b(shutdown|reboot|halt|poweroff)\b`,
		`\binit\s+[06]\b`,
		`\b(passwd|adduser|useradd|userdel|visudo)\b`,
		`\b(iptables|nft)\s`,
		`systemctl\s+(disable|mask|stop)`,
	},
	"fs_delete":  {systemPath},
	"write_file": {systemPath, `"path"\s*:\s*"[^"]*/\.ssh/`, `"path"\s*:\s*"[^"]*/\.(bashrc|zshrc|profile)"`},
	"edit_file":  {systemPath, `"path"\s*:\s*"[^"]*/\.ssh/`},
	"type_text": {
		`(?i)(password|passwd|secret|api[_-]?key)`,
		`sk-[a-zA-Z0-9_-]{20,}`,
		`AKIA[A-Z0-9]{16}`,
		`ghp_[a-zA-Z0-9]{36,}`,
	},
	"kill_process": {`"pid"\s*:\s*1\b`},
}
