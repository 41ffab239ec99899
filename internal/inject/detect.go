package inject

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultAIProcessPattern matches assistant CLIs in the process table.
const DefaultAIProcessPattern = "claude|gemini|copilot|aider|chatgpt|gpt|sgpt|codex"

var DefaultAIWindowTitles = []string{"claude", "gemini", "copilot", "aider", "chatgpt", "gpt"}

var ideProcessNames = map[string][]string{
	"darwin": {
		"Cursor", "Code", "Code - Insiders", "Windsurf", "zed",
		"IntelliJ IDEA", "PyCharm", "WebStorm", "PhpStorm", "GoLand", "RubyMine", "CLion", "Rider", "DataGrip", "Android Studio",
	},
	"linux": {
		"cursor", "code", "code-insiders", "windsurf", "zed",
		"idea", "pycharm", "webstorm", "phpstorm", "goland", "rubymine", "clion", "rider", "datagrip", "studio",
	},
}

var terminalApps = map[string][]string{
	"darwin": {"Terminal", "iTerm2", "iTerm", "Alacritty", "kitty", "Warp"},
	"linux":  {"gnome-terminal", "konsole", "xfce4-terminal", "xterm", "alacritty", "kitty", "terminator", "tilix"},
}

var desktopApps = map[string][]string{
	"darwin": {"Claude"},
	"linux":  {"claude"},
}

// Targets lists what injection could reach right now.
type Targets struct {
	IDE        string `json:"ide,omitempty"`
	Terminal   string `json:"terminal,omitempty"`
	DesktopApp string `json:"desktop_app,omitempty"`
}

func (t Targets) Empty() bool {
	return t.IDE == "" && t.Terminal == "" && t.DesktopApp == ""
}

func (t Targets) String() string {
	var parts []string
	if t.IDE != "" {
		parts = append(parts, "IDE: "+t.IDE)
	}
	if t.Terminal != "" {
		parts = append(parts, "Terminal: "+t.Terminal)
	}
	if t.DesktopApp != "" {
		parts = append(parts, "Desktop: "+t.DesktopApp)
	}
	if len(parts) == 0 {
		return "no targets detected"
	}
	return strings.Join(parts, ", ")
}

// DetectTargets probes for an IDE, a terminal running an assistant CLI, and a desktop assistant app.
func (d *Desktop) DetectTargets(ctx context.Context) Targets {
	return Targets{
		IDE:        d.runningIDE(ctx),
		Terminal:   d.terminalWithAI(ctx),
		DesktopApp: d.runningDesktopApp(ctx),
	}
}

func (d *Desktop) runningIDE(ctx context.Context) string {
	if target := d.targetApp; target != "" && !contains(terminalApps[d.goos], target) && !contains(desktopApps[d.goos], target) {
		if d.hasWindows(ctx, target) {
			return target
		}
		log.Debug().Str("target_app", target).Msg("configured target not running, auto-detecting")
	}
	names := ideProcessNames[d.goos]
	for _, ide := range names {
		if d.hasWindows(ctx, ide) {
			return ide
		}
	}
	if d.goos == "darwin" {
		// Window counts need accessibility permission; the process table does not.
		out, err := d.run.Run(ctx, "ps", "-eo", "comm=")
		if err == nil {
			running := map[string]bool{}
			for _, line := range strings.Split(out, "\n") {
				line = strings.TrimSpace(line)
				if i := strings.LastIndex(line, "/"); i >= 0 {
					line = line[i+1:]
				}
				running[strings.ToLower(line)] = true
			}
			for _, ide := range names {
				if running[strings.ToLower(ide)] {
					return ide
				}
			}
		}
	}
	return ""
}

func (d *Desktop) runningDesktopApp(ctx context.Context) string {
	apps := desktopApps[d.goos]
	if d.targetApp != "" && contains(apps, d.targetApp) {
		apps = []string{d.targetApp}
	}
	for _, app := range apps {
		if d.hasWindows(ctx, app) {
			return app
		}
	}
	return ""
}

func (d *Desktop) hasWindows(ctx context.Context, app string) bool {
	switch d.goos {
	case "darwin":
		out, err := d.run.Run(ctx, "osascript", "-e",
			fmt.Sprintf(`tell application "System Events" to tell process "%s" to get (count of windows)`, app))
		if err != nil {
			return false
		}
		n, err := strconv.Atoi(out)
		return err == nil && n > 0
	case "linux":
		if d.run.Has("xdotool") {
			out, err := d.run.Run(ctx, "xdotool", "search", "--name", app)
			return err == nil && out != ""
		}
		if d.run.Has("wmctrl") {
			out, err := d.run.Run(ctx, "wmctrl", "-l")
			return err == nil && strings.Contains(strings.ToLower(out), strings.ToLower(app))
		}
	}
	return false
}

// aiInTerminal reports whether an assistant CLI owns a real tty.
func (d *Desktop) aiInTerminal(ctx context.Context) bool {
	out, err := d.run.Run(ctx, "ps", "-eo", "tty=,comm=")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		tty := fields[0]
		if tty == "??" || tty == "?" {
			continue
		}
		if d.aiPattern.MatchString(strings.ToLower(strings.Join(fields[1:], " "))) {
			return true
		}
	}
	return false
}

func (d *Desktop) aiRunning(ctx context.Context) bool {
	out, err := d.run.Run(ctx, "ps", "-eo", "comm=")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if d.aiPattern.MatchString(strings.ToLower(line)) {
			return true
		}
	}
	return false
}

func (d *Desktop) terminalWithAI(ctx context.Context) string {
	if !d.aiInTerminal(ctx) {
		return ""
	}
	for _, term := range terminalApps[d.goos] {
		if d.hasWindows(ctx, term) {
			return term
		}
	}
	return ""
}

// activateAITerminal raises the first terminal window whose title names an assistant.
func (d *Desktop) activateAITerminal(ctx context.Context) bool {
	switch d.goos {
	case "darwin":
		var conds []string
		for _, t := range d.windowTitles {
			conds = append(conds,
				fmt.Sprintf(`name of aWindow contains "%s"`, t),
				fmt.Sprintf(`name of aWindow contains "%s"`, capitalize(t)))
		}
		for _, app := range terminalApps["darwin"] {
			script := fmt.Sprintf(`tell application "System Events"
	if exists process "%[1]s" then
		tell process "%[1]s"
			repeat with aWindow in every window
				if %[2]s then
					perform action "AXRaise" of aWindow
					set frontmost to true
					return "%[1]s"
				end if
			end repeat
		end tell
	end if
end tell
return ""`, app, strings.Join(conds, " or "))
			out, err := d.run.Run(ctx, "osascript", "-e", script)
			if err == nil && out == app {
				return true
			}
		}
	case "linux":
		if d.run.Has("xdotool") {
			for _, title := range d.windowTitles {
				out, err := d.run.Run(ctx, "xdotool", "search", "--name", title)
				if err != nil || out == "" {
					continue
				}
				id := strings.SplitN(out, "\n", 2)[0]
				_, err = d.run.Run(ctx, "xdotool", "windowactivate", id)
				return err == nil
			}
		}
		if d.run.Has("wmctrl") {
			out, err := d.run.Run(ctx, "wmctrl", "-l")
			if err != nil {
				return false
			}
			for _, line := range strings.Split(out, "\n") {
				lower := strings.ToLower(line)
				for _, title := range d.windowTitles {
					if strings.Contains(lower, title) {
						id := strings.Fields(line)[0]
						_, err := d.run.Run(ctx, "wmctrl", "-i", "-a", id)
						return err == nil
					}
				}
			}
		}
	}
	return false
}

func (d *Desktop) frontmostApp(ctx context.Context) string {
	switch d.goos {
	case "darwin":
		out, _ := d.run.Run(ctx, "osascript", "-e",
			`tell application "System Events" to get name of first process whose frontmost is true`)
		return out
	case "linux":
		if d.run.Has("xdotool") {
			out, _ := d.run.Run(ctx, "xdotool", "getactivewindow", "getwindowname")
			return out
		}
	}
	return ""
}

func (d *Desktop) activateApp(ctx context.Context, app string) bool {
	var err error
	switch d.goos {
	case "darwin":
		_, err = d.run.Run(ctx, "osascript", "-e", fmt.Sprintf(`tell application "%s" to activate`, app))
	case "linux":
		switch {
		case d.run.Has("xdotool"):
			_, err = d.run.Run(ctx, "xdotool", "search", "--name", app, "windowactivate")
		case d.run.Has("wmctrl"):
			_, err = d.run.Run(ctx, "wmctrl", "-a", app)
		default:
			return false
		}
	default:
		return false
	}
	return err == nil
}

func compilePattern(pattern string) *regexp.Regexp {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultAIProcessPattern
	}
	re, err := regexp.Compile(strings.ToLower(pattern))
	if err != nil {
		log.Warn().Err(err).Str("pattern", pattern).Msg("invalid ai process pattern, using default")
		re = regexp.MustCompile(DefaultAIProcessPattern)
	}
	return re
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
