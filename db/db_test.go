package db

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liangmanlin/netsync/codec"
	"github.com/liangmanlin/netsync/netobj"
)

type hero struct {
	name string
	gold int32
}

func (h *hero) SetName(v string) { h.name = v }
func (h *hero) GetName() string  { return h.name }

func heroReg() *netobj.Registration {
	return netobj.NewRegistration("hero", func() *hero { return &hero{} }).Declare(
		netobj.Method1("SetName", (*hero).SetName, netobj.Broadcast|netobj.Persistent),
		netobj.Getter("GetName", (*hero).GetName),
		netobj.Property("Gold",
			func(h *hero) int32 { return h.gold },
			func(h *hero, v int32) { h.gold = v },
			netobj.Broadcast|netobj.Persistent),
	)
}

const fixedNow int64 = 1700000000000

func newService(t *testing.T) *netobj.ObjectService {
	t.Helper()
	svc := netobj.NewObjectService(codec.NewDefault(codec.DefaultOptions()).Freeze(), netobj.Config{
		Server: true,
		Clock:  func() int64 { return fixedNow },
	})
	require.NoError(t, svc.Register(heroReg()))
	return svc
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	// 写库在worker上，和建对象的查询没有先后
	mock.MatchExpectationsInOrder(false)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func versionSql(tab string, def interface{}) string {
	return fmt.Sprintf("replace into `db_version` values ('%s','%s');", tab, tabMd5(def))
}

// expectFresh expects the table check of an empty database
func expectFresh(mock sqlmock.Sqlmock, defs map[string]*TabDef) {
	mock.ExpectQuery("show tables;").WillReturnRows(sqlmock.NewRows([]string{"Tables_in_test"}))
	mock.ExpectExec(genCreateSql(defs[tabVersion])).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(versionSql(tabVersion, &dbVersion{})).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select * from `db_version` where  1 ").WillReturnRows(
		sqlmock.NewRows([]string{"TabName", "Version"}).AddRow(tabVersion, tabMd5(&dbVersion{})))
	mock.ExpectExec(genCreateSql(defs[DefaultTable])).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(versionSql(DefaultTable, &objectRow{})).WillReturnResult(sqlmock.NewResult(0, 1))
}

func newStore(t *testing.T, svc *netobj.ObjectService) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMock(t)
	expectFresh(mock, initDef(DefaultTable))
	s, err := NewStore(db, svc)
	require.NoError(t, err)
	return s, mock
}

func rowSelect(key string) string {
	return fmt.Sprintf("select * from `net_object` where `ObjectKey` = '%s'", key)
}

func objectRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"ObjectKey", "TypeName", "Version", "RecordCount", "Records", "UpdatedAt"})
}

// records encodes what a hero named name with gold would store
func records(t *testing.T, svc *netobj.ObjectService, name string, gold int32) (int32, []byte) {
	t.Helper()
	reg, ok := svc.Registration("hero")
	require.True(t, ok)
	setName, ok := reg.Lookup("SetName", []any{""})
	require.True(t, ok)
	goldProp, ok := reg.Lookup("Gold", []any{int32(0)})
	require.True(t, ok)
	p := codec.NewPayload(svc.Codecs())
	defer p.Free()
	n, err := netobj.WriteValues(p, []netobj.SnapshotValue{
		{Member: setName, Value: name},
		{Member: goldProp, Value: gold},
	})
	require.NoError(t, err)
	return int32(n), append([]byte(nil), p.Bytes()...)
}

func replaceSql(rows ...*objectRow) string {
	values := ""
	for i, r := range rows {
		if i > 0 {
			values += ","
		}
		values += "(" + insertValue(r) + ")"
	}
	return fmt.Sprintf("replace into `net_object` values %s;", values)
}

func TestEncode(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{int32(-3), "-3"},
		{int64(1 << 40), "1099511627776"},
		{uint(7), "7"},
		{"a'b\\c", `'a\'b\\c'`},
		{"x\x00\"", `'x\0\"'`},
		{[]byte{0x01, 0xab}, "X'01ab'"},
		{[]byte{}, "''"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.in))
		})
	}
	assert.Equal(t, "'k',1,X'00',0", insertValue(&struct {
		A string
		B bool
		C []byte
		D int64
	}{A: "k", B: true, C: []byte{0}}))
}

func TestCreateSql(t *testing.T) {
	defs := initDef("objs")
	sqlStr := genCreateSql(defs["objs"])
	assert.Contains(t, sqlStr, "create table if not exists `objs`")
	assert.Contains(t, sqlStr, "`Records` mediumblob")
	assert.Contains(t, sqlStr, "`RecordCount` INT( 11 ) NOT NULL")
	assert.Contains(t, sqlStr, "`UpdatedAt` BIGINT( 23 ) NOT NULL")
	assert.Contains(t, sqlStr, "PRIMARY KEY(`ObjectKey`)")
	assert.Contains(t, sqlStr, "KEY `TypeName` (`TypeName`)")
	assert.Equal(t, "`ObjectKey` = 'a' and `TypeName` = 'b'", GetWhere(&TabDef{Pkey: []string{"ObjectKey", "TypeName"}}, "a", "b"))
	assert.Equal(t, " 1 ", GetWhere(defs["objs"]))
}

func TestFreshTables(t *testing.T) {
	svc := newService(t)
	s, mock := newStore(t, svc)
	s.Close()
	assert.Equal(t, DefaultTable, s.Table())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlterFields(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("show tables;").WillReturnRows(
		sqlmock.NewRows([]string{"Tables_in_test"}).AddRow(tabVersion).AddRow(DefaultTable))
	mock.ExpectQuery("select * from `db_version` where  1 ").WillReturnRows(
		sqlmock.NewRows([]string{"TabName", "Version"}).
			AddRow(tabVersion, tabMd5(&dbVersion{})).
			AddRow(DefaultTable, "old"))
	mock.ExpectQuery("desc `net_object`;").WillReturnRows(
		sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
			AddRow("ObjectKey", "varchar(250)", "NO", "PRI", nil, "").
			AddRow("TypeName", "varchar(250)", "NO", "MUL", nil, "").
			AddRow("Records", "mediumblob", "YES", "", nil, "").
			AddRow("Owner", "varchar(250)", "NO", "", nil, "").
			AddRow("Extra", "int(11)", "NO", "", nil, ""))
	mock.ExpectExec("ALTER TABLE `net_object` " +
		"Add `Version` VARCHAR( 250 ) NOT NULL AFTER `TypeName`," +
		"Add `RecordCount` INT( 11 ) NOT NULL AFTER `Version`," +
		"Add `UpdatedAt` BIGINT( 23 ) NOT NULL AFTER `Records`;").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER TABLE `net_object` DROP `Extra`,DROP `Owner`;").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(versionSql(DefaultTable, &objectRow{})).WillReturnResult(sqlmock.NewResult(0, 1))

	s, err := NewStore(db, newService(t))
	require.NoError(t, err)
	s.Close()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPersistDelete(t *testing.T) {
	svc := newService(t)
	s, mock := newStore(t, svc)
	owner := uuid.New()
	key := "hero/" + owner.String()
	reg, _ := svc.Registration("hero")
	count, recs := records(t, svc, "bob", 30)

	mock.ExpectQuery(rowSelect(key)).WillReturnRows(objectRows().AddRow(key, "hero", reg.Fingerprint(), count, recs, int64(1)))
	a, err := svc.Create("hero", owner)
	require.NoError(t, err)
	h := a.Target().(*hero)
	assert.Equal(t, "bob", h.name)
	assert.Equal(t, int32(30), h.gold)
	// 恢复的数据不广播
	assert.Equal(t, 0, a.Reliable().Len())

	// no owner, no record
	_, err = svc.Create("hero", uuid.Nil)
	require.NoError(t, err)

	require.NoError(t, a.Call("Gold", int32(45)))
	count, recs = records(t, svc, "bob", 45)
	mock.ExpectExec(replaceSql(&objectRow{
		ObjectKey: key, TypeName: "hero", Version: reg.Fingerprint(),
		RecordCount: count, Records: recs, UpdatedAt: fixedNow,
	})).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.Equal(t, 1, s.Persist())

	mock.ExpectExec(fmt.Sprintf("delete from `net_object` where (`ObjectKey` = '%s');", key)).WillReturnResult(sqlmock.NewResult(0, 1))
	require.True(t, svc.DeleteNow(a.ID()))

	s.Close()
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, float64(1), testutil.ToFloat64(svc.Metrics().Persisted))
	assert.Equal(t, 0, s.Persist())
}

func TestStaleRecordIgnored(t *testing.T) {
	svc := newService(t)
	s, mock := newStore(t, svc)
	owner := uuid.New()
	key := "hero/" + owner.String()
	count, recs := records(t, svc, "old", 99)

	mock.ExpectQuery(rowSelect(key)).WillReturnRows(objectRows().AddRow(key, "hero", "other-version", count, recs, int64(1)))
	a, err := svc.Create("hero", owner)
	require.NoError(t, err)
	assert.Equal(t, "", a.Target().(*hero).name)
	assert.Equal(t, int32(0), a.Target().(*hero).gold)

	// missing record
	other := uuid.New()
	mock.ExpectQuery(rowSelect("hero/" + other.String())).WillReturnRows(objectRows())
	_, err = svc.Create("hero", other)
	require.NoError(t, err)

	s.Close()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryInvalidConn(t *testing.T) {
	svc := newService(t)
	s, mock := newStore(t, svc)
	reg, _ := svc.Registration("hero")
	row := func(owner uuid.UUID, name string, gold int32) *objectRow {
		count, recs := records(t, svc, name, gold)
		return &objectRow{
			ObjectKey: "hero/" + owner.String(), TypeName: "hero", Version: reg.Fingerprint(),
			RecordCount: count, Records: recs, UpdatedAt: fixedNow,
		}
	}
	o1, o2 := uuid.New(), uuid.New()

	mock.ExpectQuery(rowSelect("hero/" + o1.String())).WillReturnRows(objectRows())
	a1, err := svc.Create("hero", o1)
	require.NoError(t, err)
	require.NoError(t, a1.Call("SetName", "ann"))
	mock.ExpectExec(replaceSql(row(o1, "ann", 0))).WillReturnError(mysql.ErrInvalidConn)
	assert.Equal(t, 1, s.Persist())

	// the failed row is written with the next batch, a newer row of the
	// same key replaces it
	mock.ExpectQuery(rowSelect("hero/" + o2.String())).WillReturnRows(objectRows())
	a2, err := svc.Create("hero", o2)
	require.NoError(t, err)
	require.NoError(t, a2.Call("Gold", int32(5)))
	mock.ExpectExec(replaceSql(row(o1, "ann", 0), row(o2, "", 5))).WillReturnResult(sqlmock.NewResult(0, 2))
	assert.Equal(t, 2, s.Persist())

	s.Close()
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, float64(2), testutil.ToFloat64(svc.Metrics().Persisted))
}

func TestFailedRowsDroppedOnDelete(t *testing.T) {
	svc := newService(t)
	s, mock := newStore(t, svc)
	reg, _ := svc.Registration("hero")
	owner := uuid.New()
	key := "hero/" + owner.String()

	mock.ExpectQuery(rowSelect(key)).WillReturnRows(objectRows())
	a, err := svc.Create("hero", owner)
	require.NoError(t, err)
	count, recs := records(t, svc, "", 0)
	mock.ExpectExec(replaceSql(&objectRow{
		ObjectKey: key, TypeName: "hero", Version: reg.Fingerprint(),
		RecordCount: count, Records: recs, UpdatedAt: fixedNow,
	})).WillReturnError(mysql.ErrInvalidConn)
	s.Persist()

	mock.ExpectExec(fmt.Sprintf("delete from `net_object` where (`ObjectKey` = '%s');", key)).WillReturnResult(sqlmock.NewResult(0, 1))
	require.True(t, svc.DeleteNow(a.ID()))
	// nothing left to retry
	assert.Equal(t, 0, s.Persist())

	s.Close()
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, s.worker.fail)
}
