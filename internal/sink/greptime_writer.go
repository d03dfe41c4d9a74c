package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

const (
	defaultGreptimePort = 4001
	defaultStatusTable  = "batch_statuses"
)

// greptimeClient is the subset of the ingester client used by the writer.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes end states and statuses to GreptimeDB via the
// ingester client. Tables are created on first write.
type GreptimeDBWriter struct {
	client      greptimeClient
	endTable    string
	statusTable string
	log         *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint (host or host:port). An empty
// statusTable uses batch_statuses.
func NewGreptimeDBWriter(endpoint, database, endStateTable, statusTable string, log *slog.Logger) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	if statusTable == "" {
		statusTable = defaultStatusTable
	}
	return &GreptimeDBWriter{
		client:      client,
		endTable:    endStateTable,
		statusTable: statusTable,
		log:         log,
	}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("greptime endpoint %q: invalid port", endpoint)
	}
	return host, port, nil
}

// WriteEndState inserts a single end state row.
func (w *GreptimeDBWriter) WriteEndState(r EndStateRow) error {
	return w.WriteEndStates([]EndStateRow{r})
}

// WriteEndStates inserts multiple end state rows.
func (w *GreptimeDBWriter) WriteEndStates(rows []EndStateRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.endTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddTagColumn("batch_id", types.STRING)
	tbl.AddFieldColumn("object_id", types.STRING)
	tbl.AddFieldColumn("epoch", types.STRING)
	for _, c := range []string{"x", "y", "z", "x_dot", "y_dot", "z_dot"} {
		tbl.AddFieldColumn(c, types.FLOAT64)
	}
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		if err := tbl.AddRow(r.RunID, r.BatchID, r.ObjectID, r.Epoch,
			r.X, r.Y, r.Z, r.XDot, r.YDot, r.ZDot, r.Timestamp); err != nil {
			return err
		}
	}
	return w.write(tbl, len(rows))
}

// WriteStatus inserts a single status row.
func (w *GreptimeDBWriter) WriteStatus(r StatusRow) error {
	return w.WriteStatuses([]StatusRow{r})
}

// WriteStatuses inserts multiple status rows.
func (w *GreptimeDBWriter) WriteStatuses(rows []StatusRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.statusTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddTagColumn("batch_id", types.STRING)
	tbl.AddFieldColumn("object_id", types.STRING)
	tbl.AddFieldColumn("calc_state", types.STRING)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		if err := tbl.AddRow(r.RunID, r.BatchID, r.ObjectID, r.CalcState, r.Timestamp); err != nil {
			return err
		}
	}
	return w.write(tbl, len(rows))
}

func (w *GreptimeDBWriter) write(tbl *table.Table, n int) error {
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		w.log.Error("greptime write failed", "rows", n, "err", err)
		return err
	}
	w.log.Debug("greptime write", "rows", n)
	return nil
}
