package db

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
)

type scanFunc func(...interface{}) error

// ModSelectRow reads the row with primary key key, nil when there is none
func (s *Store) ModSelectRow(tab string, key ...interface{}) (interface{}, error) {
	def := s.GetDef(tab)
	row := s.db.QueryRow(fmt.Sprintf("select * from `%s` where %s", def.Name, GetWhere(def, key...)))
	return toRow(def, row.Scan)
}

func (s *Store) ModSelectAll(tab string, key ...interface{}) ([]interface{}, error) {
	def := s.GetDef(tab)
	rows, err := s.db.Query(fmt.Sprintf("select * from `%s` where %s", def.Name, GetWhere(def, key...)))
	if err != nil {
		return nil, errors.Wrapf(err, "select %s", tab)
	}
	defer rows.Close()
	sl := make([]interface{}, 0, 2)
	for rows.Next() {
		rs, err := toRow(def, rows.Scan)
		if err != nil {
			return nil, err
		}
		sl = append(sl, rs)
	}
	return sl, rows.Err()
}

func (s *Store) ModReplace(tab string, data interface{}) (sql.Result, error) {
	return s.ModMultiReplace(tab, []interface{}{data})
}

// ModMultiReplace writes every row of dataList in one statement, existing
// primary keys are overwritten
func (s *Store) ModMultiReplace(tab string, dataList []interface{}) (sql.Result, error) {
	def := s.GetDef(tab)
	values := make([]string, len(dataList))
	for i, data := range dataList {
		values[i] = "(" + insertValue(data) + ")"
	}
	sqlStr := fmt.Sprintf("replace into `%s` values %s;", def.Name, strings.Join(values, ","))
	ret, err := s.db.Exec(sqlStr)
	if err != nil {
		return nil, errors.Wrapf(err, "replace %s", tab)
	}
	return ret, nil
}

func (s *Store) ModDeletePKey(tab string, pkey ...interface{}) (sql.Result, error) {
	def := s.GetDef(tab)
	sqlStr := fmt.Sprintf("delete from `%s` where (%s);", def.Name, GetWhere(def, pkey...))
	ret, err := s.db.Exec(sqlStr)
	if err != nil {
		return nil, errors.Wrapf(err, "delete %s", tab)
	}
	return ret, nil
}

func GetWhere(def *TabDef, key ...interface{}) string {
	if len(key) == 0 {
		return " 1 "
	}
	sl := make([]string, 0, len(key))
	for i, v := range key {
		sl = append(sl, fmt.Sprintf("`%s` = %s", def.Pkey[i], Encode(v)))
	}
	return strings.Join(sl, " and ")
}

func insertValue(data interface{}) string {
	vf := reflect.ValueOf(data)
	if vf.Kind() == reflect.Ptr {
		vf = vf.Elem()
	}
	fileNum := vf.NumField()
	sl := make([]string, fileNum, fileNum)
	for i := 0; i < fileNum; i++ {
		f := vf.Field(i)
		sl[i] = encodeValue(&f)
	}
	return strings.Join(sl, ",")
}

func toRow(def *TabDef, scanF scanFunc) (interface{}, error) {
	dataPtr := reflect.New(reflect.TypeOf(def.DataStruct).Elem()) //定义的时候要求是指针
	data := dataPtr.Elem()
	fileNum := data.NumField()
	scan := make([]interface{}, fileNum, fileNum)
	for i := 0; i < fileNum; i++ {
		f := data.Field(i)
		switch f.Kind() {
		case reflect.Bool:
			var v int
			scan[i] = &v
		default:
			scan[i] = reflect.New(f.Type()).Interface()
		}
	}
	if err := scanF(scan...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "scan %s", def.Name)
	}
	for i := 0; i < fileNum; i++ {
		f := data.Field(i)
		switch f.Kind() {
		case reflect.Bool:
			f.SetBool(*scan[i].(*int) == 1)
		default:
			f.Set(reflect.ValueOf(scan[i]).Elem())
		}
	}
	return dataPtr.Interface(), nil
}
