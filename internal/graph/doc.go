// Package graph описывает статические графы процессов.
//
// Граф процесса — фиксированное отображение имени шага в описатель
// перехода: линейный Next, параллельный FanOut с join-группой, либо
// лист без переходов. Графы объявляются в коде, валидируются при
// построении (ацикличность, уникальность join-групп, все ссылки
// объявлены) и во время выполнения не меняются.
package graph
