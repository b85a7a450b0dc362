package rustyshim

import (
	"errors"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/ipc"
)

// WriteRecordBatches writes the given record batches to w as an Arrow IPC stream.
func WriteRecordBatches(w io.Writer, schema *arrow.Schema, batches []arrow.Record) (err error) {
	if schema == nil {
		return errors.New("cannot encode batches without a schema")
	}

	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	defer func() {
		err = errors.Join(err, writer.Close())
	}()

	for _, batch := range batches {
		if err := writer.Write(batch); err != nil {
			return err
		}
	}
	return nil
}

// ReadRecordBatches decodes an Arrow IPC stream into a result set.
func ReadRecordBatches(r io.Reader) (*ResultSet, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer reader.Release()

	rs := &ResultSet{Schema: reader.Schema()}
	for reader.Next() {
		batch := reader.Record()
		batch.Retain()
		rs.Records = append(rs.Records, batch)
	}
	if err := reader.Err(); err != nil {
		rs.Release()
		return nil, err
	}
	return rs, nil
}
