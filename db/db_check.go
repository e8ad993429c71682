package db

import (
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-faster/errors"

	"github.com/liangmanlin/netsync/crypto"
	"github.com/liangmanlin/netsync/kernel"
)

// tableCheck creates missing tables and migrates the columns of tables whose
// struct changed, db_version keeps the md5 of every table struct
func (s *Store) tableCheck() error {
	rows, err := s.db.Query("show tables;")
	if err != nil {
		return errors.Wrap(err, "show tables")
	}
	tabs := make(map[string]string, len(s.defs))
	for rows.Next() {
		var tabName string
		if err = rows.Scan(&tabName); err != nil {
			rows.Close()
			return errors.Wrap(err, "show tables")
		}
		tabs[tabName] = "1"
	}
	_ = rows.Close()
	if _, ok := tabs[tabVersion]; !ok {
		if tabs[tabVersion], err = s.createTable(tabVersion); err != nil {
			return err
		}
	}
	vers, err := s.ModSelectAll(tabVersion)
	if err != nil {
		return err
	}
	for _, v := range vers {
		v2 := v.(*dbVersion)
		tabs[v2.TabName] = v2.Version
	}
	for _, def := range s.GetAllDef() {
		if def.Name == tabVersion {
			continue
		}
		md5, ok := tabs[def.Name]
		if !ok {
			if _, err = s.createTable(def.Name); err != nil {
				return err
			}
			continue
		}
		md52 := tabMd5(def.DataStruct)
		if md5 != md52 {
			kernel.ErrorLog("tab:[%s] check fields,ver: %s,old ver: %s", def.Name, md52, md5)
			if err = s.checkField(def, md52); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) createTable(tab string) (string, error) {
	def := s.GetDef(tab)
	md5Str := tabMd5(def.DataStruct)
	if _, err := s.db.Exec(genCreateSql(def)); err != nil {
		return "", errors.Wrapf(err, "create table %s", tab)
	}
	if _, err := s.ModReplace(tabVersion, &dbVersion{TabName: tab, Version: md5Str}); err != nil {
		return "", err
	}
	return md5Str, nil
}

func genCreateSql(def *TabDef) string {
	vt := reflect.TypeOf(def.DataStruct).Elem()
	fNum := vt.NumField()
	fsl := make([]string, fNum, fNum+len(def.Keys)+1)
	for i := 0; i < fNum; i++ {
		fsl[i] = getFieldDef(vt.Field(i))
	}
	if len(def.Pkey) > 0 {
		psl := make([]string, 0, len(def.Pkey))
		for _, pk := range def.Pkey {
			psl = append(psl, fmt.Sprintf("`%s`", pk))
		}
		fsl = append(fsl, fmt.Sprintf("PRIMARY KEY(%s)", strings.Join(psl, ",")))
	}
	for _, k := range def.Keys {
		fsl = append(fsl, fmt.Sprintf("KEY `%s` (`%s`)", k, k))
	}
	return fmt.Sprintf("create table if not exists `%s` (%s) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;", def.Name, strings.Join(fsl, ",\n"))
}

func (s *Store) checkField(def *TabDef, md5 string) error {
	rows, err := s.db.Query(fmt.Sprintf("desc `%s`;", def.Name))
	if err != nil {
		return errors.Wrapf(err, "desc %s", def.Name)
	}
	fmap := make(map[string]bool)
	for rows.Next() {
		var field, a, b, c, d, e sql.NullString
		if err = rows.Scan(&field, &a, &b, &c, &d, &e); err == nil {
			fmap[field.String] = true
		}
	}
	rows.Close()
	rt := reflect.TypeOf(def.DataStruct).Elem()
	fNum := rt.NumField()
	var alter []string
	for i := 0; i < fNum; i++ {
		t := rt.Field(i)
		if _, ok := fmap[t.Name]; ok {
			delete(fmap, t.Name)
			continue
		}
		if i == 0 {
			alter = append(alter, fmt.Sprintf("Add %s FIRST", getFieldDef(t)))
		} else {
			alter = append(alter, fmt.Sprintf("Add %s AFTER `%s`", getFieldDef(t), rt.Field(i-1).Name))
		}
	}
	if len(alter) > 0 {
		sqlAdd := fmt.Sprintf("ALTER TABLE `%s` %s;", def.Name, strings.Join(alter, ","))
		if _, err = s.db.Exec(sqlAdd); err != nil {
			return errors.Wrapf(err, "alter %s", def.Name)
		}
	}
	if len(fmap) > 0 {
		del := make([]string, 0, len(fmap))
		for fn := range fmap {
			del = append(del, fmt.Sprintf("DROP `%s`", fn))
		}
		// map 无序，排一下保证语句稳定
		sort.Strings(del)
		sqlDel := fmt.Sprintf("ALTER TABLE `%s` %s;", def.Name, strings.Join(del, ","))
		if _, err = s.db.Exec(sqlDel); err != nil {
			return errors.Wrapf(err, "alter %s", def.Name)
		}
	}
	_, err = s.ModReplace(tabVersion, &dbVersion{TabName: def.Name, Version: md5})
	return err
}

func getFieldDef(t reflect.StructField) string {
	var fs string
	switch t.Type.Kind() {
	case reflect.Bool, reflect.Int, reflect.Uint, reflect.Int32:
		fs = fmt.Sprintf("`%s` INT( 11 ) NOT NULL", t.Name)
	case reflect.Int64, reflect.Uint64:
		fs = fmt.Sprintf("`%s` BIGINT( 23 ) NOT NULL", t.Name)
	case reflect.Slice:
		fs = fmt.Sprintf("`%s` mediumblob", t.Name)
	case reflect.String:
		fs = fmt.Sprintf("`%s` VARCHAR( 250 ) NOT NULL", t.Name)
	default:
		kernel.ErrorLog("%s not support type,%s", t.Name, t.Type)
	}
	return fs
}

func tabMd5(src interface{}) string {
	rt := reflect.TypeOf(src)
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	n := rt.NumField()
	sl := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sl = append(sl, rt.Field(i).Name)
	}
	return crypto.Md5([]byte(strings.Join(sl, "_")))
}
