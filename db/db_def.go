package db

import (
	"reflect"
	"sort"
)

const (
	tabVersion = "db_version"
	// DefaultTable keeps one row per persistent object
	DefaultTable = "net_object"
)

type TabDef struct {
	Name       string
	Pkey       []string
	Keys       []string
	DataStruct interface{}
	nameType   map[string]reflect.Type
}

type dbVersion struct {
	TabName string
	Version string
}

// objectRow is the stored state of one object: its persistent members as
// update records, valid while the registration fingerprint is Version
type objectRow struct {
	ObjectKey   string
	TypeName    string
	Version     string
	RecordCount int32
	Records     []byte
	UpdatedAt   int64
}

func initDef(objectTab string) map[string]*TabDef {
	defs := make(map[string]*TabDef, 2)
	for _, def := range []*TabDef{
		{Name: tabVersion, DataStruct: &dbVersion{}, Pkey: []string{"TabName"}},
		{Name: objectTab, DataStruct: &objectRow{}, Pkey: []string{"ObjectKey"}, Keys: []string{"TypeName"}},
	} {
		def.buildMap()
		defs[def.Name] = def
	}
	return defs
}

func (s *Store) GetDef(tab string) *TabDef {
	return s.defs[tab]
}

// GetAllDef lists the table definitions ordered by name
func (s *Store) GetAllDef() []*TabDef {
	l := make([]*TabDef, 0, len(s.defs))
	for _, v := range s.defs {
		l = append(l, v)
	}
	sort.Slice(l, func(i, j int) bool { return l[i].Name < l[j].Name })
	return l
}

func (t *TabDef) buildMap() {
	vf := reflect.TypeOf(t.DataStruct).Elem()
	t.nameType = make(map[string]reflect.Type)
	num := vf.NumField()
	for i := 0; i < num; i++ {
		f := vf.Field(i)
		t.nameType[f.Name] = f.Type
	}
}
