package transform

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	importLine = regexp.MustCompile(`^\s*import\s+(?:[\w$*{}\s,]+\s+from\s+)?['"][^'"]+['"]\s*;?\s*$`)

	exportListLine    = regexp.MustCompile(`^\s*export\s*\{[^}]*\}\s*(?:from\s+['"][^'"]+['"])?\s*;?\s*$`)
	exportStarLine    = regexp.MustCompile(`^\s*export\s*\*\s*(?:as\s+[\w$]+\s+)?from\s+['"][^'"]+['"]\s*;?\s*$`)
	exportDefaultName = regexp.MustCompile(`^\s*export\s+default\s+[A-Za-z_$][\w$]*\s*;?\s*$`)
	exportPrefix      = regexp.MustCompile(`^(\s*)export\s+(?:default\s+)?((?:async\s+)?function\b|class\b|const\b|let\b|var\b|\(|[A-Za-z_$])`)

	renderInvocation = regexp.MustCompile(`\b(?:ReactDOM\s*\.\s*(?:render|hydrate|createRoot|hydrateRoot)|createRoot)\s*\(`)

	componentDef = regexp.MustCompile(`^(?:export\s+(?:default\s+)?)?(?:` +
		`(?:async\s+)?function\s*\*?\s*([A-Z][\w$]*)\s*\(` +
		`|(?:const|let|var)\s+([A-Z][\w$]*)\s*=\s*(?:React\.memo\(\s*|memo\(\s*)?(?:async\s+)?(?:function\b|\([^)]*\)\s*=>|[A-Za-z_$][\w$]*\s*=>)` +
		`|class\s+([A-Z][\w$]*)\s+extends\s+(?:React\.)?(?:Pure)?Component\b)`)

	hookName = regexp.MustCompile(`\b(?:useState|useEffect|useRef|useContext|useReducer|useMemo|useCallback)\b`)
)

// HookNames are the hooks QualifyHookNames rewrites.
var HookNames = []string{"useState", "useEffect", "useRef", "useContext", "useReducer", "useMemo", "useCallback"}

// StripModuleSyntax removes single-line import statements and export lists
// and drops the export keyword from exported declarations. Lines it does not
// recognise are kept byte for byte.
func StripModuleSyntax(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, line := range splitLines(text) {
		body := strings.TrimRight(line, "\r\n")
		switch {
		case importLine.MatchString(body),
			exportListLine.MatchString(body),
			exportStarLine.MatchString(body),
			exportDefaultName.MatchString(body):
			continue
		case exportPrefix.MatchString(body):
			b.WriteString(exportPrefix.ReplaceAllString(body, "$1$2"))
			b.WriteString(line[len(body):])
		default:
			b.WriteString(line)
		}
	}
	return b.String()
}

// HasRenderCall reports whether text already mounts something itself.
func HasRenderCall(text string) bool {
	return renderInvocation.MatchString(text)
}

// FirstComponent returns the name of the first top-level capitalised
// component definition, or "" when there is none. A definition is top-level
// when it starts a statement outside every bracket pair.
func FirstComponent(text string) string {
	name := ""
	scanStatements(text, func(i int) bool {
		m := componentDef.FindStringSubmatch(text[i:])
		if m == nil {
			return true
		}
		for _, n := range m[1:] {
			if n != "" {
				name = n
				return false
			}
		}
		return true
	})
	return name
}

// scanStatements calls visit with the offset of every top-level statement
// start until visit returns false. Strings and comments are skipped. Quoted
// strings end at a line break.
func scanStatements(text string, visit func(int) bool) {
	depth := 0
	start := true
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '\n':
			start = true
			continue
		case ' ', '\t', '\r':
			continue
		case '/':
			if end, ok := skipComment(text, i); ok {
				i = end
				continue
			}
		}

		if depth == 0 && start && !visit(i) {
			return
		}
		start = false

		switch c {
		case '{', '(', '[':
			depth++
		case '}', ')', ']':
			if depth > 0 {
				depth--
			}
			start = depth == 0 && c == '}'
		case ';':
			start = depth == 0
		case '\'':
			// An apostrophe after a letter is JSX text, as in <p>Don't</p>.
			if i == 0 || !isWordByte(text[i-1]) {
				i = skipQuoted(text, i)
			}
		case '"', '`':
			i = skipQuoted(text, i)
		}
	}
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// skipComment returns the offset of the last byte of the comment starting at
// i. A line comment stops before its line break.
func skipComment(text string, i int) (int, bool) {
	if i+1 >= len(text) {
		return i, false
	}
	switch text[i+1] {
	case '/':
		if n := strings.IndexByte(text[i:], '\n'); n >= 0 {
			return i + n - 1, true
		}
		return len(text), true
	case '*':
		if n := strings.Index(text[i+2:], "*/"); n >= 0 {
			return i + n + 3, true
		}
		return len(text), true
	}
	return i, false
}

func skipQuoted(text string, i int) int {
	q := text[i]
	for j := i + 1; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case q:
			return j
		case '\n':
			if q != '`' {
				return j - 1
			}
		}
	}
	return len(text)
}

// RenderCall is the statement EnsureRenderCall appends.
func RenderCall(component, mountID string) string {
	return fmt.Sprintf("ReactDOM.createRoot(document.getElementById(%q)).render(<%s />);", mountID, component)
}

// EnsureRenderCall appends a render call for the first capitalised
// component when the source does not mount anything on its own.
func EnsureRenderCall(text, mountID string) string {
	if HasRenderCall(text) {
		return text
	}
	name := FirstComponent(text)
	if name == "" {
		return text
	}
	if mountID == "" {
		mountID = DefaultMountID
	}

	sep := "\n"
	if text != "" && !strings.HasSuffix(text, "\n") {
		sep = "\n\n"
	}
	return text + sep + RenderCall(name, mountID) + "\n"
}

// QualifyHookNames rewrites bare hook references to their React-namespaced
// form. Occurrences already preceded by a dot are left alone, which makes
// the pass idempotent.
func QualifyHookNames(text string) string {
	locs := hookName.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + len(locs)*len("React."))
	last := 0
	for _, loc := range locs {
		if loc[0] > 0 && text[loc[0]-1] == '.' {
			continue
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString("React.")
		b.WriteString(text[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}
