// Package codegen generates typed Go stubs from the discovery of a webglue server.
package codegen

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/dave/jennifer/jen"

	"github.com/philippseith/webglue"
)

const webgluePath = "github.com/philippseith/webglue"

// Generate renders a Go file of package pkgName with one struct per API of discovery
// and one constant per hook name.
func Generate(pkgName string, discovery webglue.Discovery) ([]byte, error) {
	f := jen.NewFile(pkgName)
	f.HeaderComment("Code generated by webglue gen. DO NOT EDIT.")

	generateHookNames(f, discovery.Events)
	for _, apiName := range sortedKeys(discovery.API) {
		generateAPI(f, apiName, discovery.API[apiName])
	}
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("render %v: %w", pkgName, err)
	}
	return buf.Bytes(), nil
}

func generateHookNames(f *jen.File, events map[string][]string) {
	defs := []jen.Code{
		jen.Id("OnHeartbeat").Op("=").Lit(webglue.HookName("", "Heartbeat")),
	}
	for _, apiName := range sortedKeys(events) {
		for _, eventName := range events[apiName] {
			hook := webglue.HookName(apiName, eventName)
			defs = append(defs, jen.Id(identifier(hook)).Op("=").Lit(hook))
		}
	}
	f.Comment("Hook names of the discovered events")
	f.Const().Defs(defs...)
}

func generateAPI(f *jen.File, apiName string, fncNames []string) {
	typeName := identifier(apiName) + "API"
	if apiName == "" {
		typeName = "RootAPI"
	}
	f.Commentf("%v calls the functions of API %q", typeName, apiName)
	f.Type().Id(typeName).Struct(
		jen.Id("client").Qual(webgluePath, "Client"),
	)
	f.Func().Id("New"+typeName).
		Params(jen.Id("client").Qual(webgluePath, "Client")).
		Op("*").Id(typeName).
		Block(jen.Return(jen.Op("&").Id(typeName).Values(jen.Dict{jen.Id("client"): jen.Id("client")})))

	for _, fncName := range fncNames {
		f.Commentf("%v calls %v.%v", identifier(fncName), apiName, fncName)
		f.Func().Params(jen.Id("a").Op("*").Id(typeName)).Id(identifier(fncName)).
			Params(
				jen.Id("ctx").Qual("context", "Context"),
				jen.Id("args").Op("...").Interface()).
			Params(jen.Interface(), jen.Error()).
			Block(jen.Return(jen.Id("a").Dot("client").Dot("Call").Call(
				jen.Id("ctx"), jen.Lit(apiName), jen.Lit(fncName), jen.Id("args").Op("..."))))
	}
}

// identifier converts a name like "chat.room" or "get-user" into an exported Go identifier
func identifier(name string) string {
	var sb strings.Builder
	upper := true
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if sb.Len() == 0 && unicode.IsDigit(r) {
			sb.WriteRune('X')
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		sb.WriteRune(r)
	}
	if sb.Len() == 0 {
		return "X"
	}
	return sb.String()
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
