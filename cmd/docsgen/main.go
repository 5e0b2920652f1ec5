// Генерация документации по ошибкам API в формате Markdown.
// Таблица строится по ошибкам, объявленным в пакете apierrors: код, статус HTTP и оба варианта сообщения.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/aisa-it/ldapauth/internal/ldapauth/apierrors"
	md "github.com/nao1215/markdown"
)

func main() {
	outputMd := flag.String("out", "docs/api_errors.md", "Path to output md")
	flag.Parse()

	slog.Info("Generate api errors docs", "out", *outputMd)

	f, err := os.Create(*outputMd)
	if err != nil {
		slog.Error("Create output file", "err", err)
		os.Exit(1)
	}
	defer f.Close()

	if err := render(f, apierrors.All()); err != nil {
		slog.Error("Generate docs fail", "err", err)
		os.Exit(1)
	}
	slog.Info("Docs generated")
}

func render(w io.Writer, errs []apierrors.DefinedError) error {
	return md.NewMarkdown(w).
		H1("Перечень кодов ошибок").
		PlainText("Ошибки, которые сервер возвращает при входе и управлении учётными записями. Тело ответа содержит поля code, error и ru_error.").
		CustomTable(md.TableSet{
			Header: []string{"Код", "HTTP код", "Сообщение", "Сообщение на русском"},
			Rows:   rows(errs),
		}, md.TableOptions{
			AutoWrapText: false,
		}).Build()
}

func rows(errs []apierrors.DefinedError) [][]string {
	res := make([][]string, 0, len(errs))
	for _, e := range errs {
		res = append(res, []string{
			md.Bold(strconv.Itoa(e.Code)),
			fmt.Sprintf("%d %s", e.StatusCode, md.Italic(http.StatusText(e.StatusCode))),
			md.Code(e.Err),
			md.Code(e.RuErr),
		})
	}
	return res
}
