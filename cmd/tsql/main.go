package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/tidestore/tidestore-go/tidestore"
	"github.com/tidestore/tidestore-go/tidestore/query"
	"github.com/tidestore/tidestore-go/tidestore/shardsim"
	"github.com/tidestore/tidestore-go/tidestore/transport"
)

func main() {
	var dbPath string
	var shards int
	var partitions int
	var serveAddr string
	var endpoint string
	var queryStr string
	var explain bool
	var seed bool
	var interactive bool
	var traceLevel int
	var limit int
	var injectDups bool

	flag.StringVar(&dbPath, "db", "", "store directory (empty for in-memory)")
	flag.IntVar(&shards, "shards", 3, "number of simulated shards")
	flag.IntVar(&partitions, "partitions", 0, "number of partitions (default 4 per shard)")
	flag.StringVar(&serveAddr, "serve", "", "serve the store over HTTP on this address")
	flag.StringVar(&endpoint, "endpoint", "", "query a remote store instead of a local one")
	flag.StringVar(&queryStr, "query", "", "run a single query and exit")
	flag.BoolVar(&explain, "explain", false, "print the query plan instead of executing")
	flag.BoolVar(&seed, "seed", false, "load demo data before anything else")
	flag.BoolVar(&interactive, "i", false, "interactive mode")
	flag.IntVar(&traceLevel, "trace", 0, "client-side execution trace level")
	flag.IntVar(&limit, "limit", 0, "rows per batch (0 for the default)")
	flag.BoolVar(&injectDups, "inject-dups", false, "re-deliver batch boundary rows to exercise duplicate elimination")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Query shell and shard simulator for Tidestore.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -seed -i                                # seed demo data, query interactively\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -seed -query 'SELECT * FROM users'      # run one query\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -seed -serve :8340                      # serve the simulator over HTTP\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -endpoint http://localhost:8340 -i      # query a served store\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -seed -explain -query 'SELECT city, SUM(age) AS total FROM users GROUP BY city'\n", os.Args[0])
	}
	flag.Parse()

	var client *query.Client
	var cluster *shardsim.Cluster

	if endpoint != "" {
		exec, err := transport.New(transport.DefaultConfig(endpoint))
		if err != nil {
			log.Fatalf("Failed to build transport: %v", err)
		}
		client = query.NewClient(exec, exec)
	} else {
		var err error
		cluster, err = shardsim.Open(shardsim.Options{
			NumShards:        shards,
			NumPartitions:    partitions,
			Dir:              dbPath,
			InjectDuplicates: injectDups,
		})
		if err != nil {
			log.Fatalf("Failed to open store: %v", err)
		}
		defer cluster.Close()
		client = query.NewClient(cluster, cluster)
	}

	if seed {
		if cluster == nil {
			log.Fatal("-seed needs a local store, not -endpoint")
		}
		if err := seedDemo(cluster); err != nil {
			log.Fatalf("Failed to seed demo data: %v", err)
		}
	}

	switch {
	case serveAddr != "":
		if cluster == nil {
			log.Fatal("-serve needs a local store, not -endpoint")
		}
		fmt.Printf("Serving %s on %s\n", color.CyanString("tidestore simulator"), serveAddr)
		if err := shardsim.NewServer(cluster).Run(serveAddr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case queryStr != "":
		if err := runStatement(client, queryStr, explain, limit, traceLevel); err != nil {
			log.Fatalf("Query failed: %v", err)
		}
	case interactive:
		runInteractive(client, explain, limit, traceLevel)
	default:
		flag.Usage()
	}
}

func runInteractive(client *query.Client, explain bool, limit, traceLevel int) {
	fmt.Println("Tidestore query shell. Type a statement, or 'exit' to leave.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(color.GreenString("tsql> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if err := runStatement(client, line, explain, limit, traceLevel); err != nil {
			fmt.Println(color.RedString("error: %v", err))
		}
	}
}

func runStatement(client *query.Client, statement string, explain bool,
	limit, traceLevel int) error {

	if explain {
		prep, err := client.Prepare(statement)
		if err != nil {
			return err
		}
		plan := prep.QueryPlan()
		if plan == "" {
			fmt.Println("no driver-side plan; the store answers this query directly")
			return nil
		}
		fmt.Println(plan)
		return nil
	}

	req := query.NewQueryRequest(statement)
	req.Limit = limit
	req.TraceLevel = traceLevel

	start := time.Now()
	var rows []tidestore.Row
	var readKB, batches int
	for !req.IsDone() {
		res, err := client.Query(req)
		if err != nil {
			req.Close()
			return err
		}
		rows = append(rows, res.Rows()...)
		readKB += res.ReadKB()
		batches++
	}

	renderRows(os.Stdout, rows)
	fmt.Printf("%s in %v (%d batches, %d KB read)\n",
		color.CyanString("%d rows", len(rows)),
		time.Since(start).Round(time.Microsecond), batches, readKB)
	return nil
}

// renderRows prints rows as a markdown table over the union of their
// column names.
func renderRows(out *os.File, rows []tidestore.Row) {
	if len(rows) == 0 {
		return
	}
	seen := map[string]bool{}
	var cols []string
	for _, row := range rows {
		for name := range row {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	sort.Strings(cols)

	alignment := make([]tw.Align, len(cols))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(out,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(cols)
	for _, row := range rows {
		line := make([]string, len(cols))
		for i, name := range cols {
			line[i] = formatValue(row[name])
		}
		table.Append(line)
	}
	table.Render()
}

func formatValue(v tidestore.Value) string {
	switch tv := v.(type) {
	case nil:
		return "NULL"
	case string:
		return tv
	case time.Time:
		return tv.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", tv)
	}
}

func seedDemo(cluster *shardsim.Cluster) error {
	if err := cluster.CreateTable("users", []string{"id"}); err != nil {
		return err
	}
	demo := []tidestore.Row{
		{"id": 1, "name": "Alice", "age": int64(30), "city": "New York"},
		{"id": 2, "name": "Bob", "age": int64(25), "city": "Boston"},
		{"id": 3, "name": "Charlie", "age": int64(35), "city": "New York"},
		{"id": 4, "name": "Diana", "age": int64(28), "city": "Chicago"},
		{"id": 5, "name": "Eve", "age": int64(41), "city": "Boston"},
		{"id": 6, "name": "Frank", "age": int64(33), "city": "Chicago"},
		{"id": 7, "name": "Grace", "age": int64(29), "city": "New York"},
		{"id": 8, "name": "Heidi", "age": int64(52), "city": "Boston"},
		{"id": 9, "name": "Ivan", "age": int64(24), "city": "Chicago"},
		{"id": 10, "name": "Judy", "age": int64(38), "city": "New York"},
		{"id": 11, "name": "Mallory", "age": int64(45), "city": "Boston"},
		{"id": 12, "name": "Niaj", "age": int64(27), "city": "Chicago"},
	}
	for _, row := range demo {
		if err := cluster.Put("users", row); err != nil {
			return err
		}
	}
	fmt.Printf("Seeded %s with %d rows\n", color.CyanString("users"), len(demo))
	return nil
}
