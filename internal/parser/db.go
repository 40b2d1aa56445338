package parser

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"netpath-verifier/internal/model"
)

type invariantRow struct {
	Seq        int            `db:"seq"`
	Name       string         `db:"name"`
	Type       string         `db:"inv_type"`
	SrcIP      sql.NullString `db:"src_ip"`
	DstIP      sql.NullString `db:"dst_ip"`
	Pattern    sql.NullString `db:"pattern"`
	SwitchName sql.NullString `db:"switch_name"`
	Port       sql.NullInt64  `db:"port"`
}

type groupRow struct {
	Name    string `db:"group_name"`
	Members string `db:"members"`
}

// MariaDBProvider loads invariant records and device groups from the
// cfg_invariant and cfg_device_group tables.
type MariaDBProvider struct {
	db *sqlx.DB

	Invariants []model.InvariantSpec
	Groups     map[string][]string
}

func NewMariaDBProvider(dsn string) (*MariaDBProvider, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return NewProviderFromDB(db), nil
}

func NewProviderFromDB(db *sqlx.DB) *MariaDBProvider {
	return &MariaDBProvider{
		db:     db,
		Groups: make(map[string][]string),
	}
}

func (p *MariaDBProvider) Close() error {
	return p.db.Close()
}

func (p *MariaDBProvider) Load(ctx context.Context) error {
	if err := p.loadGroups(ctx); err != nil {
		return fmt.Errorf("failed to load device groups: %w", err)
	}
	if err := p.loadInvariants(ctx); err != nil {
		return fmt.Errorf("failed to load invariants: %w", err)
	}
	return nil
}

func (p *MariaDBProvider) loadGroups(ctx context.Context) error {
	var rows []groupRow
	if err := p.db.SelectContext(ctx, &rows, "SELECT group_name, members FROM cfg_device_group ORDER BY group_name"); err != nil {
		return err
	}
	for _, row := range rows {
		var members []string
		if err := json.Unmarshal([]byte(row.Members), &members); err != nil {
			return fmt.Errorf("group %s: invalid members: %w", row.Name, err)
		}
		p.Groups[row.Name] = members
	}
	return nil
}

func (p *MariaDBProvider) loadInvariants(ctx context.Context) error {
	var rows []invariantRow
	query := "SELECT seq, name, inv_type, src_ip, dst_ip, pattern, switch_name, port FROM cfg_invariant ORDER BY seq ASC"
	if err := p.db.SelectContext(ctx, &rows, query); err != nil {
		return err
	}

	p.Invariants = make([]model.InvariantSpec, 0, len(rows))
	for _, row := range rows {
		spec := model.InvariantSpec{
			Name:    row.Name,
			Type:    model.InvariantType(row.Type),
			Pattern: row.Pattern.String,
			Switch:  row.SwitchName.String,
			Port:    int(row.Port.Int64),
		}
		var err error
		if spec.PacketSet.SrcIP, err = decodeAddressList(row.SrcIP); err != nil {
			return fmt.Errorf("invariant %d (%s): invalid src_ip: %w", row.Seq, row.Name, err)
		}
		if spec.PacketSet.DstIP, err = decodeAddressList(row.DstIP); err != nil {
			return fmt.Errorf("invariant %d (%s): invalid dst_ip: %w", row.Seq, row.Name, err)
		}
		p.Invariants = append(p.Invariants, spec)
	}
	return nil
}

// ApplyGroups merges the loaded device groups into the network. Groups from
// the database replace same-named groups from the topology export.
func (p *MariaDBProvider) ApplyGroups(network *model.Network) {
	if len(p.Groups) == 0 {
		return
	}
	if network.Groups == nil {
		network.Groups = make(map[string][]string)
	}
	for name, members := range p.Groups {
		network.Groups[name] = members
	}
}

func decodeAddressList(col sql.NullString) ([]string, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(col.String), &list); err != nil {
		return nil, err
	}
	return list, nil
}
