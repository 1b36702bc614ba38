// invoicectl 发票运维命令行：预览编号模板、审计发票链、计算订单号、修改模板
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env 不存在时忽略，环境变量仍然生效
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
