// Package console implements the interactive SQL console over the
// intermediate store. Dot-commands alias common queries against the store
// schema; anything else is passed to SQLite verbatim.
package console

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"log/slog"
)

// aliases maps dot-commands to the queries they stand for.
var aliases = map[string]string{
	".tables":  "SELECT name FROM sqlite_master WHERE type='table'",
	".schema":  "SELECT sql FROM sqlite_master WHERE type='table'",
	".dbinfo":  "SELECT * FROM sqlite_master",
	".size":    "SELECT page_count * page_size AS size FROM pragma_page_count(), pragma_page_size()",
	".modlets": "SELECT name, version, author FROM modlets",
	".blocks":  "SELECT id, modlet_name, short_path, outer_tag FROM xml_blocks",
	".rows":    "SELECT id, modlet_name, key, english FROM localization_rows",
}

const helpText = `Commands: .tables, .schema, .dbinfo, .size, .modlets, .blocks, .rows, .help, exit`

// Console reads statements from In and writes result tables to Out.
type Console struct {
	DB  *sql.DB
	In  io.Reader
	Out io.Writer
	Log *slog.Logger
}

func New(db *sql.DB, in io.Reader, out io.Writer, log *slog.Logger) *Console {
	return &Console{DB: db, In: in, Out: out, Log: log}
}

// Run reads statements until EOF or an exit command. Query failures are
// printed and the loop continues.
func (c *Console) Run() error {
	scanner := bufio.NewScanner(c.In)
	fmt.Fprintln(c.Out, "Intermediate store console. Type .help for commands, exit to quit.")
	for {
		fmt.Fprint(c.Out, "sql> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit", line == "quit", line == ".exit":
			return scanner.Err()
		case line == ".help":
			fmt.Fprintln(c.Out, helpText)
			continue
		}
		if err := c.Exec(line); err != nil {
			fmt.Fprintf(c.Out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

// Exec runs one statement (or dot-alias) and prints its result set.
func (c *Console) Exec(stmt string) error {
	query := stmt
	if strings.HasPrefix(stmt, ".") {
		alias, ok := aliases[stmt]
		if !ok {
			return fmt.Errorf("unknown command %s (try .help)", stmt)
		}
		query = alias
	}
	c.Log.Debug("console query", "query", query)

	rows, err := c.DB.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()
	return c.printRows(rows)
}

func (c *Console) printRows(rows *sql.Rows) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))

	values := make([]sql.NullString, len(cols))
	scanArgs := make([]any, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	count := 0
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return err
		}
		parts := make([]string, len(values))
		for i, v := range values {
			if v.Valid {
				parts[i] = v.String
			} else {
				parts[i] = "NULL"
			}
		}
		fmt.Fprintln(w, strings.Join(parts, "\t"))
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	w.Flush()
	fmt.Fprintf(c.Out, "(%d rows)\n", count)
	return nil
}
