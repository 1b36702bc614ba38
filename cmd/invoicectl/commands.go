package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"invoicing/internal/domain/pattern"
	"invoicing/internal/repository"
	"invoicing/internal/service"

	"github.com/spf13/cobra"
)

func newRenderCmd(opts *rootOptions) *cobra.Command {
	var (
		online bool
		date   string
		counts pattern.Counts
	)

	cmd := &cobra.Command{
		Use:   "render [pattern]",
		Short: "用给定的计数渲染编号模板",
		Example: `  invoicectl render 'YYMMmmmX[/VL]' --date 2024-03-05 --month 12 --online
  invoicectl render 'FA-YYYY-nnnnnn' --global 41`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			loc, err := cfg.Invoicing.Location()
			if err != nil {
				return err
			}

			now := time.Now().In(loc)
			if date != "" {
				if now, err = time.ParseInLocation("2006-01-02", date, loc); err != nil {
					return fmt.Errorf("日期格式应为 YYYY-MM-DD: %w", err)
				}
			}

			r := pattern.NewRenderer(pattern.WithLocale(cfg.Invoicing.Locale), pattern.WithLogger(log))
			for _, a := range r.Check(args[0]) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: offset %d %q %s\n", a.Offset, a.Fragment, a.Reason)
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.Render(args[0], now, counts, online))
			return nil
		},
	}

	cmd.Flags().BoolVar(&online, "online", false, "按线上支付渲染 X[...]")
	cmd.Flags().StringVar(&date, "date", "", "开票日期 YYYY-MM-DD，默认今天")
	cmd.Flags().Int64Var(&counts.Day, "day", 0, "当日已开发票数")
	cmd.Flags().Int64Var(&counts.Month, "month", 0, "当月已开发票数")
	cmd.Flags().Int64Var(&counts.Year, "year", 0, "当年已开发票数")
	cmd.Flags().Int64Var(&counts.Global, "global", 0, "全部已开发票数")
	return cmd
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var id int64

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "校验发票 footprint 链，发现篡改时以非零状态退出",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			audit := service.NewAuditService(e.db, e.cfg, e.log)

			var out interface{}
			var ok bool
			if id > 0 {
				res, err := audit.Verify(cmd.Context(), id)
				if err != nil {
					return err
				}
				out, ok = res, res.Valid
			} else {
				report, err := audit.Audit(cmd.Context())
				if err != nil {
					return err
				}
				out, ok = report, report.OK()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if !ok {
				return errChainBroken
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "只校验到这张发票为止")
	return cmd
}

func newOrderNumberCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "order-number [invoice-id]",
		Short: "按当前模板计算发票的订单号",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("发票ID无效: %w", err)
			}

			e, err := opts.open()
			if err != nil {
				return err
			}
			invoices, err := e.invoiceService()
			if err != nil {
				return err
			}

			inv, err := repository.NewInvoiceRepository(e.db).GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			number, err := invoices.OrderNumber(cmd.Context(), inv)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), number)
			return nil
		},
	}
}

func newSetPatternCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-pattern [invoice_reference|invoice_order-nb] [pattern]",
		Short: "修改编号模板，无法解析的片段只告警",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			invoices, err := e.invoiceService()
			if err != nil {
				return err
			}

			anomalies, err := invoices.Settings().SetPattern(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			for _, a := range anomalies {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: offset %d %q %s\n", a.Offset, a.Fragment, a.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		},
	}
}
