package purge

import (
	"gorm.io/gorm"
)

// DeleteOperation removes the rows of one table that belong to a single
// identifier. Statement must take exactly one bind variable.
type DeleteOperation struct {
	Table     string
	Statement string
}

// CompositeDelete is an ordered list of delete operations. For each
// identifier the operations run strictly in list order, which is how
// dependent rows are removed before the rows they reference.
type CompositeDelete []DeleteOperation

// Counts holds affected row counts keyed by table.
type Counts map[string]int64

// Add merges other into c.
func (c Counts) Add(other Counts) {
	for table, n := range other {
		c[table] += n
	}
}

// Total returns the sum over all tables.
func (c Counts) Total() int64 {
	var total int64
	for _, n := range c {
		total += n
	}
	return total
}

// Apply runs every operation for id inside tx. The first failure stops the
// remaining operations; the caller must roll tx back.
func (c CompositeDelete) Apply(tx *gorm.DB, step string, id int64) (Counts, error) {
	counts := make(Counts, len(c))
	for _, op := range c {
		res := tx.Exec(op.Statement, id)
		if res.Error != nil {
			return counts, &DeleteError{Step: step, Table: op.Table, ID: id, Err: res.Error}
		}
		counts[op.Table] += res.RowsAffected
	}
	return counts, nil
}

// Tables lists the tables touched, in execution order.
func (c CompositeDelete) Tables() []string {
	tables := make([]string, 0, len(c))
	for _, op := range c {
		tables = append(tables, op.Table)
	}
	return tables
}
