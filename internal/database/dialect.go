package database

import (
	"fmt"
	"strings"
)

// Dialect controls placeholder style, identifier quoting and procedure
// framing for the SQL this package and the providers emit.
type Dialect int

const (
	// DialectPostgres uses $1, $2, … placeholders and "double quotes".
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders and `backticks`.
	DialectMySQL
)

// maxPlaceholders is the bind-parameter limit shared by postgres and mysql.
const maxPlaceholders = 65535

// Placeholder returns the parameter placeholder for the 1-based position n.
func (d Dialect) Placeholder(n int) string {
	if d == DialectMySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// typedPlaceholder casts the placeholder to dbType when one is given.
func (d Dialect) typedPlaceholder(n int, dbType string) string {
	switch {
	case dbType == "":
		return d.Placeholder(n)
	case d == DialectMySQL:
		return "CAST(? AS " + dbType + ")"
	}
	return d.Placeholder(n) + "::" + dbType
}

// QuoteIdent quotes a single identifier.
func (d Dialect) QuoteIdent(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteTable renders a possibly qualified table name. Postgres cannot
// address another database from a session, so Database is ignored there.
// MySQL has no schema level below the database: Database wins, and Schema
// is used as the database when Database is empty.
func (d Dialect) QuoteTable(t TableIdentity) string {
	qualifier := t.Schema
	if d == DialectMySQL && t.Database != "" {
		qualifier = t.Database
	}
	if qualifier == "" {
		return d.QuoteIdent(t.Name)
	}
	return d.QuoteIdent(qualifier) + "." + d.QuoteIdent(t.Name)
}

// QuoteColumns quotes and joins column names.
func (d Dialect) QuoteColumns(cols []*Column) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c.Name)
	}
	return strings.Join(quoted, ", ")
}

// Bind renders cmd as native SQL and arguments.
//
// Text commands have their @name tokens replaced by placeholders, in order of
// appearance. Text without any @name token binds the sending parameters
// positionally in sequence order. Stored procedure commands are framed as
// SELECT * FROM name(...) on postgres and CALL name(...) on mysql, with the
// sending parameters in sequence order. Output and return-value parameters
// are never sent as arguments. A parameter with a DBType has its placeholder
// cast to that type wherever the placeholder is written.
func (d Dialect) Bind(cmd *Command) (string, []any, error) {
	if cmd == nil {
		return "", nil, errInvalidInput("command is nil")
	}
	if err := checkUniqueNames(cmd.params); err != nil {
		return "", nil, err
	}

	if cmd.kind == CommandStoredProcedure {
		var (
			args    []any
			holders []string
		)
		for _, p := range cmd.params {
			if !p.Direction.sendsValue() {
				continue
			}
			args = append(args, p.Value)
			holders = append(holders, d.typedPlaceholder(len(args), p.DBType))
		}
		list := strings.Join(holders, ", ")
		if d == DialectMySQL {
			return fmt.Sprintf("CALL %s(%s)", cmd.text, list), args, nil
		}
		return fmt.Sprintf("SELECT * FROM %s(%s)", cmd.text, list), args, nil
	}

	return d.bindNamed(cmd.text, cmd.params, 0)
}

// bindNamed rewrites @name tokens. offset is the number of placeholders
// already used by the enclosing statement.
func (d Dialect) bindNamed(text string, params []Parameter, offset int) (string, []any, error) {
	byName := make(map[string]int, len(params))
	for i, p := range params {
		byName[strings.ToLower(p.Name)] = i
	}

	var (
		sb       strings.Builder
		args     []any
		assigned = make(map[int]int) // param index -> placeholder number (postgres reuse)
		found    bool
	)
	sb.Grow(len(text))

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := skipQuoted(text, i, c)
			sb.WriteString(text[i:end])
			i = end - 1
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				end = len(text) - i
			}
			sb.WriteString(text[i : i+end])
			i += end - 1
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			stop := len(text)
			if end >= 0 {
				stop = i + 2 + end + 2
			}
			sb.WriteString(text[i:stop])
			i = stop - 1
		case c == '@' && i+1 < len(text) && text[i+1] == '@':
			sb.WriteString("@@")
			i++
		case c == '@' && i+1 < len(text) && isIdentStart(text[i+1]):
			j := i + 1
			for j < len(text) && isIdentPart(text[j]) {
				j++
			}
			name := text[i+1 : j]
			idx, ok := byName[strings.ToLower(name)]
			if !ok {
				return "", nil, errInvalidCommand(fmt.Sprintf("no parameter supplied for @%s", name))
			}
			found = true
			if n, ok := assigned[idx]; ok && d == DialectPostgres {
				sb.WriteString(d.typedPlaceholder(n, params[idx].DBType))
			} else {
				args = append(args, params[idx].Value)
				n := offset + len(args)
				assigned[idx] = n
				sb.WriteString(d.typedPlaceholder(n, params[idx].DBType))
			}
			i = j - 1
		default:
			sb.WriteByte(c)
		}
	}

	if !found {
		return text, sendingValues(params), nil
	}
	return sb.String(), args, nil
}

// skipQuoted returns the index just past the quoted run starting at i.
// Doubled quote characters are treated as escapes.
func skipQuoted(s string, i int, q byte) int {
	for j := i + 1; j < len(s); j++ {
		if s[j] == q {
			if j+1 < len(s) && s[j+1] == q {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(s)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func checkUniqueNames(params []Parameter) error {
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if p.Name == "" {
			continue
		}
		key := strings.ToLower(p.Name)
		if _, dup := seen[key]; dup {
			return errInvalidCommand(fmt.Sprintf("duplicate parameter name %q", p.Name))
		}
		seen[key] = struct{}{}
	}
	return nil
}

func sendingValues(params []Parameter) []any {
	args := make([]any, 0, len(params))
	for _, p := range params {
		if p.Direction.sendsValue() {
			args = append(args, p.Value)
		}
	}
	return args
}

// InsertSQL builds a multi-row INSERT for rows records of cols.
func (d Dialect) InsertSQL(table TableIdentity, cols []*Column, rows int) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(d.QuoteTable(table))
	sb.WriteString(" (")
	sb.WriteString(d.QuoteColumns(cols))
	sb.WriteString(") VALUES ")

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := range cols {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.Placeholder(n))
			n++
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// BindScope renders a merge scope condition whose @name tokens start after
// offset placeholders.
func (d Dialect) BindScope(scope *MergeScope, offset int) (string, []any, error) {
	if scope == nil || strings.TrimSpace(scope.Where) == "" {
		return "", nil, nil
	}
	if err := checkUniqueNames(scope.Params); err != nil {
		return "", nil, err
	}
	return d.bindNamed(scope.Where, scope.Params, offset)
}
