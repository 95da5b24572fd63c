package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sila-protocol/sila-go/pkg/log"
	"github.com/sila-protocol/sila-go/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	Header            *log.Header
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Operations        map[wire.Operation]int
	Statuses          map[wire.Status]int
	Executions        map[string]int // final execution state -> count
	TransferredBytes  int64
	Connections       map[string]*ConnectionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	RemoteAddr string
	Requests   int
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Operations:        make(map[wire.Operation]int),
		Statuses:          make(map[wire.Status]int),
		Executions:        make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	var conn *ConnectionStats
	if event.ConnectionID != "" {
		conn = s.Connections[event.ConnectionID]
		if conn == nil {
			conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			s.Connections[event.ConnectionID] = conn
		}
		conn.Events++
		if event.Timestamp.After(conn.LastSeen) {
			conn.LastSeen = event.Timestamp
		}
		if conn.RemoteAddr == "" {
			conn.RemoteAddr = event.RemoteAddr
		}
	}

	switch {
	case event.Message != nil:
		msg := event.Message
		if msg.Type == log.MessageTypeRequest && msg.Operation != nil {
			s.Operations[*msg.Operation]++
			if conn != nil {
				conn.Requests++
			}
		}
		if msg.Type == log.MessageTypeResponse && msg.Status != nil {
			s.Statuses[*msg.Status]++
		}
	case event.StateChange != nil:
		sc := event.StateChange
		if sc.Entity == log.StateEntityExecution && isFinal(sc.NewState) {
			s.Executions[sc.NewState]++
		}
	case event.Transfer != nil:
		s.TransferredBytes += int64(event.Transfer.Size)
	case event.Error != nil:
		s.Errors++
	}
}

func isFinal(state string) bool {
	return state == wire.ExecutionFinishedSuccessfully.String() || state == wire.ExecutionFinishedWithError.String()
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats := newStats()
	if r, err := log.NewReader(path); err == nil {
		if h, ok := r.Header(); ok {
			stats.Header = &h
		}
		r.Close()
	}
	if err := each(path, log.Filter{}, func(event log.Event) error {
		stats.add(event)
		return nil
	}); err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== SiLA Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if h := stats.Header; h != nil {
		fmt.Fprintf(w, "Captured By: %s", h.Role)
		if h.ServerID != "" {
			fmt.Fprintf(w, " (server %s)", h.ServerID)
		}
		fmt.Fprintf(w, ", %s\n\n", h.Created.Format(time.RFC3339))
	}

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerService} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryTransfer, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}

	if len(stats.Operations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Requests by Operation:")
		printCounts(w, stats.Operations)
	}
	if len(stats.Statuses) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Responses by Status:")
		printCounts(w, stats.Statuses)
	}
	if len(stats.Executions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Finished Executions:")
		printCounts(w, stats.Executions)
	}
	if stats.TransferredBytes > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Binary Transfer: %d bytes\n", stats.TransferredBytes)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, %d requests, duration %s\n",
				shortenID(c.id), c.stats.Events, c.stats.Requests, duration)
			if c.stats.RemoteAddr != "" {
				fmt.Fprintf(w, "           Remote: %s\n", c.stats.RemoteAddr)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}

// printCounts prints a count table sorted by label.
func printCounts[K comparable](w io.Writer, counts map[K]int) {
	labels := make([]string, 0, len(counts))
	byLabel := make(map[string]int, len(counts))
	for k, n := range counts {
		label := fmt.Sprint(k)
		if _, seen := byLabel[label]; !seen {
			labels = append(labels, label)
		}
		byLabel[label] += n
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(w, "  %-28s %d\n", label+":", byLabel[label])
	}
}
