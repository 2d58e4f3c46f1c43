package sqli

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/iohelper"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/target"
)

// errorPayloads break the surrounding SQL string or expression.
var errorPayloads = []string{`'`, `"`, `')`, `1'"`}

type signature struct {
	dbms     DBMS
	patterns []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// signatures are checked in order; engine-specific ones first so the
// DBMS is named when possible.
var signatures = []signature{
	{MySQL, compile(
		`SQL syntax.*MySQL`,
		`Warning.*mysqli?_`,
		`valid MySQL result`,
		`MySqlClient\.`,
		`com\.mysql\.jdbc`,
		`You have an error in your SQL syntax`,
	)},
	{PostgreSQL, compile(
		`PostgreSQL.*ERROR`,
		`Warning.*\Wpg_`,
		`Npgsql\.`,
		`PG::SyntaxError`,
		`org\.postgresql\.util\.PSQLException`,
		`ERROR:\s*syntax error at or near`,
		`unterminated quoted string at or near`,
	)},
	{MSSQL, compile(
		`Driver.*SQL[\-\_\ ]*Server`,
		`OLE DB.*SQL Server`,
		`Warning.*mssql_`,
		`Microsoft SQL Native Client error`,
		`Msg \d+, Level \d+, State \d+`,
		`Unclosed quotation mark after`,
		`System\.Data\.SqlClient\.SqlException`,
	)},
	{Oracle, compile(
		`\bORA-[0-9]{4,}`,
		`Oracle error`,
		`Warning.*oci_`,
		`quoted string not properly terminated`,
	)},
	{SQLite, compile(
		`SQLite.*error`,
		`Warning.*sqlite_`,
		`SQLite3::`,
		`\[SQLITE_ERROR\]`,
		`unrecognized token:`,
	)},
	{Generic, compile(
		`SQL syntax`,
		`java\.sql\.SQLException`,
		`ODBC.*Driver`,
		`JDBC.*Exception`,
		`Incorrect syntax near`,
		`Unexpected end of command`,
		`javax\.persistence\.PersistenceException`,
		`SQLSTATE\[`,
	)},
}

// quickKeywords gate the regex pass; bodies without any of them cannot
// match a signature.
var quickKeywords = []string{
	"sql", "syntax", "mysql", "postgres", "oracle", "sqlite", "odbc",
	"jdbc", "ora-", "pg::", "unclosed", "quotation", "quoted", "npgsql",
	"unrecognized token",
}

// MatchError finds a database error in body. It returns the engine and
// the matched text with some surrounding context.
func MatchError(body string) (DBMS, string, bool) {
	lower := strings.ToLower(body)
	quick := false
	for _, kw := range quickKeywords {
		if strings.Contains(lower, kw) {
			quick = true
			break
		}
	}
	if !quick {
		return "", "", false
	}
	for _, sig := range signatures {
		for _, re := range sig.patterns {
			if loc := re.FindStringIndex(body); loc != nil {
				return sig.dbms, iohelper.Window(body, loc[0], loc[1], 60), true
			}
		}
	}
	return "", "", false
}

func (t *Tester) errorBased(ctx context.Context, tg target.Target, p probe.InjectionPoint, base *httpclient.Response) (*finding.Finding, error) {
	if _, _, ok := MatchError(base.BodyString()); ok {
		// The page shows SQL errors without our help; nothing to attribute.
		return nil, nil
	}
	for _, payload := range errorPayloads {
		value := p.Original + payload
		resp, err := t.send(ctx, tg, p, value, "sqli/error")
		if err != nil {
			return nil, err
		}
		dbms, excerpt, ok := MatchError(resp.BodyString())
		if !ok {
			continue
		}
		return t.newFinding(tg, p, ErrorBased, finding.Confirmed, value, resp,
			fmt.Sprintf("dbms=%s error=%q", dbms, excerpt), "dbms:"+string(dbms)), nil
	}
	return nil, nil
}
