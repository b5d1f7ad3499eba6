package miner

const deftem = `
library(sbrl)
library(jsonlite)

################################################################################

data <- read.csv("{{ .DataPath }}", colClasses = "factor")
label <- data$label
data$label <- NULL

################################################################################

frame <- data.frame(lapply(data, factor))
frame$label <- label

model <- sbrl(
  frame,
  rule_minlen = {{ .Opts.RuleMinLen }},
  rule_maxlen = {{ .Opts.RuleMaxLen }},
  minsupport_pos = {{ .Opts.MinSupport }},
  minsupport_neg = {{ .Opts.MinSupport }},
  lambda = {{ .Opts.Lambda }},
  eta = {{ .Opts.Eta }},
  nchain = {{ .Opts.Chains }},
  iters = {{ .Opts.Iterations }}{{ if .AlphaCSV }},
  alpha = c({{ .AlphaCSV }}){{ end }}
)

################################################################################

order <- model$rs$V1 - 1
probs <- as.matrix(model$rs[, -1, drop = FALSE])
names <- c(model$rulenames, "default")

result <- list(
  order = order,
  probs = unname(split(probs, row(probs))),
  names = names
)

write(toJSON(result, auto_unbox = FALSE, digits = 12), file = "{{ .ResultPath }}")
`
